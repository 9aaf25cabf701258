package entities

import "fmt"

// Handle identifies an entry in the binding table.
type Handle uint32

const (
	// HandleNone is returned by failed binds and is never callable.
	HandleNone Handle = 0
	// HandleScratch is rewritten by every temporary bind.
	HandleScratch Handle = 1
	// FirstStableHandle is the first handle assigned to a deduplicated entry.
	FirstStableHandle Handle = 2
)

// FuncID is the engine's identity for a resolved script function.
// Zero means unresolved.
type FuncID uint64

// NativeAddress is the process-wide identity of a resolved native export.
type NativeAddress uint64

// HostLibrary is the reserved library name that resolves functions from the
// host function registry instead of a loaded native library.
const HostLibrary = "@host"

// NativeLibrarySuffix marks a bind target as a native library.
const NativeLibrarySuffix = ".wasm"

// BoundFunction is the value stored behind a handle.
// It is either a ScriptCall or a NativeCall.
type BoundFunction interface {
	fmt.Stringer
	// Declaration returns the declaration the entry was bound with.
	Declaration() string
	boundFunction()
}

// ScriptCall refers to a function inside a compiled script module.
type ScriptCall struct {
	Module string
	Decl   string
	ID     FuncID
}

func (ScriptCall) boundFunction() {}

// Declaration implements BoundFunction.
func (c ScriptCall) Declaration() string { return c.Decl }

func (c ScriptCall) String() string {
	return fmt.Sprintf("script %s::%s", c.Module, c.Decl)
}

// Resolved reports whether the entry still points at a live function.
func (c ScriptCall) Resolved() bool { return c.ID != 0 }

// NativeCall refers to an export of a native library or a host function.
type NativeCall struct {
	Library string
	Symbol  string
	Decl    string
	Address NativeAddress
}

func (NativeCall) boundFunction() {}

// Declaration implements BoundFunction.
func (c NativeCall) Declaration() string { return c.Decl }

func (c NativeCall) String() string {
	return fmt.Sprintf("native %s!%s (%s)", c.Library, c.Symbol, c.Decl)
}

// SameCallable reports whether a and b refer to the same underlying callable.
// Script entries compare by function id, native entries by address.
func SameCallable(a, b BoundFunction) bool {
	switch x := a.(type) {
	case ScriptCall:
		y, ok := b.(ScriptCall)
		return ok && x.ID != 0 && x.ID == y.ID
	case NativeCall:
		y, ok := b.(NativeCall)
		return ok && x.Address != 0 && x.Address == y.Address
	default:
		return false
	}
}

// IsNativeTarget reports whether a bind target names a native library.
func IsNativeTarget(target string) bool {
	return target == HostLibrary || len(target) > len(NativeLibrarySuffix) &&
		target[len(target)-len(NativeLibrarySuffix):] == NativeLibrarySuffix
}
