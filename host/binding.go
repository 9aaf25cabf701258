package host

import (
	"context"
	"fmt"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/errors"
	"github.com/reglet-dev/scripthost/domain/ports"
)

// nativeTarget is a resolved native export or host function.
type nativeTarget struct {
	call    ports.NativeFunc
	library string
	symbol  string
	params  int
}

// Bind resolves function in target and returns its handle.
//
// A target ending in ".wasm" is a native library and function names its
// export; "@host" names a function of the host registry; any other target
// is a loaded module whose top-level function must match the declaration.
// With temporary set the result is written into HandleScratch and
// returned without deduplication. Otherwise a callable that is already
// bound returns its existing handle.
//
// A failed bind is logged, reported by LastBindError and returns HandleNone.
func (r *Runtime) Bind(target, function, declaration string, temporary bool) entities.Handle {
	h, _, _ := r.bind(target, function, declaration, temporary)
	return h
}

// bind is Bind returning the entry written and the bind error as well.
func (r *Runtime) bind(target, function, declaration string, temporary bool) (entities.Handle, entities.BoundFunction, error) {
	bound, err := r.resolve(target, function, declaration)
	r.bindMu.Lock()
	defer r.bindMu.Unlock()
	r.lastBindErr = err
	if err != nil {
		r.logger.Error("bind failed",
			"module", target,
			"function", function,
			"declaration", declaration,
			"error", err)
		return entities.HandleNone, nil, err
	}
	if len(r.bindings) < int(entities.FirstStableHandle) {
		r.lastBindErr = ErrClosed
		return entities.HandleNone, nil, ErrClosed
	}

	if temporary {
		r.bindings[entities.HandleScratch] = bound
		return entities.HandleScratch, bound, nil
	}
	for h := int(entities.FirstStableHandle); h < len(r.bindings); h++ {
		if entities.SameCallable(r.bindings[h], bound) {
			return entities.Handle(h), r.bindings[h], nil //nolint:gosec // G115: the table never outgrows uint32
		}
	}
	r.bindings = append(r.bindings, bound)
	return entities.Handle(len(r.bindings) - 1), bound, nil //nolint:gosec // G115: the table never outgrows uint32
}

// LastBindError returns the error of the most recent Bind, or nil when it
// succeeded.
func (r *Runtime) LastBindError() error {
	r.bindMu.RLock()
	defer r.bindMu.RUnlock()
	return r.lastBindErr
}

// Binding returns the entry behind h.
func (r *Runtime) Binding(h entities.Handle) (entities.BoundFunction, bool) {
	r.bindMu.RLock()
	defer r.bindMu.RUnlock()
	if h == entities.HandleNone || int(h) >= len(r.bindings) || r.bindings[h] == nil {
		return nil, false
	}
	return r.bindings[h], true
}

// Bindings returns the number of entries in the table, reserved handles
// included.
func (r *Runtime) Bindings() int {
	r.bindMu.RLock()
	defer r.bindMu.RUnlock()
	return len(r.bindings)
}

func (r *Runtime) resolve(target, function, declaration string) (entities.BoundFunction, error) {
	decl, err := entities.ParseDeclaration(declaration)
	if err != nil {
		return nil, &errors.BindError{
			Target: target, Function: function, Declaration: declaration,
			Reason: errors.BindBadDeclaration, Err: err,
		}
	}
	if entities.IsNativeTarget(target) {
		call, err := r.resolveNative(r.ctx, target, function, decl)
		if err != nil {
			return nil, err
		}
		return call, nil
	}
	call, err := r.resolveScript(target, function, decl)
	if err != nil {
		return nil, err
	}
	return call, nil
}

func (r *Runtime) resolveScript(module, function string, decl entities.Declaration) (entities.ScriptCall, error) {
	bindErr := func(reason errors.BindReason, err error) error {
		return &errors.BindError{
			Target: module, Function: function, Declaration: decl.String(),
			Reason: reason, Err: err,
		}
	}
	if function != decl.Name {
		return entities.ScriptCall{}, bindErr(errors.BindSignatureMismatch,
			fmt.Errorf("declaration names %s", decl.Name))
	}

	r.modMu.RLock()
	entry, ok := r.modules[module]
	r.modMu.RUnlock()
	if !ok {
		return entities.ScriptCall{}, bindErr(errors.BindUnknownModule, nil)
	}
	id, ok := entry.module.Function(decl)
	if !ok {
		return entities.ScriptCall{}, bindErr(errors.BindUnknownFunction, nil)
	}
	return entities.ScriptCall{Module: module, Decl: decl.String(), ID: id}, nil
}

// resolveNative resolves symbol in library to a stable address. Libraries
// are loaded once; the address of a (library, symbol) pair never changes.
func (r *Runtime) resolveNative(ctx context.Context, library, symbol string, decl entities.Declaration) (entities.NativeCall, error) {
	bindErr := func(reason errors.BindReason, err error) error {
		return &errors.BindError{
			Target: library, Function: symbol, Declaration: decl.String(),
			Reason: reason, Err: err,
		}
	}

	r.nativeMu.Lock()
	defer r.nativeMu.Unlock()

	key := library + "!" + symbol
	addr, ok := r.addresses[key]
	if !ok {
		target := &nativeTarget{library: library, symbol: symbol}
		if library == entities.HostLibrary {
			fn, found := r.hostFuncs.Lookup(symbol)
			if !found {
				return entities.NativeCall{}, bindErr(errors.BindUnknownFunction, nil)
			}
			target.call = fn.Call
			target.params = len(fn.Decl.Params)
		} else {
			lib, err := r.loader.Load(ctx, library)
			if err != nil {
				return entities.NativeCall{}, bindErr(errors.BindUnknownLibrary, err)
			}
			fn, found := lib.Resolve(symbol)
			if !found {
				return entities.NativeCall{}, bindErr(errors.BindUnknownFunction, nil)
			}
			target.call = fn.Call
			target.params = fn.ParamCount()
		}
		r.nativeCalls = append(r.nativeCalls, target)
		addr = entities.NativeAddress(len(r.nativeCalls))
		r.addresses[key] = addr
	}

	target := r.nativeCalls[addr-1]
	if len(decl.Params) != target.params {
		return entities.NativeCall{}, bindErr(errors.BindSignatureMismatch,
			fmt.Errorf("declaration takes %d arguments, %s takes %d", len(decl.Params), symbol, target.params))
	}
	if len(decl.Params) > MaxNativeArgs {
		return entities.NativeCall{}, bindErr(errors.BindSignatureMismatch,
			fmt.Errorf("more than %d arguments", MaxNativeArgs))
	}
	return entities.NativeCall{Library: library, Symbol: symbol, Decl: decl.String(), Address: addr}, nil
}

func (r *Runtime) nativeTarget(addr entities.NativeAddress) *nativeTarget {
	r.nativeMu.Lock()
	defer r.nativeMu.Unlock()
	if addr == 0 || int(addr) > len(r.nativeCalls) {
		return nil
	}
	return r.nativeCalls[addr-1]
}

// RebindAll re-resolves every script entry after a reload by binding it
// again into HandleScratch and copying the function id back. Entries that
// no longer resolve are zeroed and counted; native entries are left alone.
func (r *Runtime) RebindAll() error {
	type pending struct {
		call   entities.ScriptCall
		handle entities.Handle
	}

	r.bindMu.RLock()
	var work []pending
	for h := int(entities.FirstStableHandle); h < len(r.bindings); h++ {
		if call, ok := r.bindings[h].(entities.ScriptCall); ok {
			work = append(work, pending{call: call, handle: entities.Handle(h)}) //nolint:gosec // G115: the table never outgrows uint32
		}
	}
	r.bindMu.RUnlock()

	rebindErr := &errors.RebindError{Total: len(work)}
	for i := range work {
		w := &work[i]
		decl, err := entities.ParseDeclaration(w.call.Decl)
		if err == nil {
			var bound entities.BoundFunction
			_, bound, err = r.bind(w.call.Module, decl.Name, w.call.Decl, true)
			if call, ok := bound.(entities.ScriptCall); ok {
				w.call.ID = call.ID
			}
		}
		if err != nil {
			w.call.ID = 0
			rebindErr.Failed++
			rebindErr.Unresolved = append(rebindErr.Unresolved, w.call.Module+"::"+w.call.Decl)
			r.logger.Error("rebind failed, handle zeroed",
				"handle", w.handle,
				"module", w.call.Module,
				"declaration", w.call.Decl,
				"error", err)
		}
	}

	r.bindMu.Lock()
	for _, w := range work {
		if int(w.handle) < len(r.bindings) {
			r.bindings[w.handle] = w.call
		}
	}
	r.bindMu.Unlock()

	if rebindErr.Failed > 0 {
		return rebindErr
	}
	return nil
}

// zeroModuleBindings zeroes the script entries bound into module.
func (r *Runtime) zeroModuleBindings(module string) {
	r.bindMu.Lock()
	defer r.bindMu.Unlock()
	for h := int(entities.HandleScratch); h < len(r.bindings); h++ {
		call, ok := r.bindings[h].(entities.ScriptCall)
		if !ok || call.Module != module || !call.Resolved() {
			continue
		}
		call.ID = 0
		r.bindings[h] = call
		r.logger.Error("module unloaded, handle zeroed",
			"handle", h,
			"module", module,
			"declaration", call.Decl)
	}
}
