package ports

import (
	"context"

	"github.com/reglet-dev/scripthost/domain/entities"
)

// NativeFunc is a host-side function callable from scripts.
type NativeFunc func(ctx context.Context, args []entities.Value) (entities.Value, error)

// ScriptEngine is the embedded virtual machine.
// Definitions made with DefineGlobal, DefineDataBlock and DefineNative are
// visible to every module instantiated afterwards.
type ScriptEngine interface {
	// Version identifies the compiled unit format. Persisted units with a
	// different version are recompiled.
	Version() uint32

	// Compile builds a module from a preprocessed unit.
	Compile(name string, unit []byte) (ScriptModule, error)

	// Discard releases a module. Function ids of a discarded module no
	// longer resolve.
	Discard(module ScriptModule)

	// NewRealm creates the per-thread set of module instances.
	NewRealm() ScriptRealm

	DefineGlobal(global SharedGlobal) error
	DefineDataBlock(name string, data []byte) error
	DefineNative(decl entities.Declaration, fn NativeFunc) error

	// SetMessageCallback installs the diagnostic callback used during compilation.
	SetMessageCallback(cb func(entities.EngineMessage))

	Collector() Collector
}

// ScriptModule is an owning handle to a compiled module.
type ScriptModule interface {
	Name() string

	// Function resolves a top-level function by name and parameter count.
	Function(decl entities.Declaration) (entities.FuncID, bool)

	// Functions lists the module's top-level function names.
	Functions() []string

	// Globals lists module-scope variables and exported class fields with
	// their inferred types.
	Globals() []entities.GlobalVar
}

// ScriptRealm owns one instance of every module for a single thread.
// A realm must only be used from one goroutine at a time.
type ScriptRealm interface {
	NewContext() ScriptContext
	Close()
}

// ScriptContext is one reusable VM call stack.
type ScriptContext interface {
	Prepare(fn entities.FuncID) error
	SetArg(index int, value entities.Value) error
	Execute(ctx context.Context) entities.ContextState
	Return() entities.Value

	// Suspend requests cooperative suspension. Safe to call from any goroutine.
	Suspend()

	// Abort resets a context left in a non-finished state.
	Abort()
	Unprepare()

	State() entities.ContextState
	CallStack() []entities.CallFrame
	Exception() string
}

// SharedGlobal is a host-owned variable shared by every realm and by native libraries.
type SharedGlobal interface {
	Name() string
	Type() entities.TypeRef
	Load() entities.Value
	Store(v entities.Value) error
}
