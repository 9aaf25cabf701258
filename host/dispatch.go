package host

import (
	"context"
	"fmt"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/errors"
	"github.com/reglet-dev/scripthost/hostfuncs"
)

// current returns the prepared, not yet run context.
func (t *Thread) current() *slot {
	if t.depth == 0 {
		return nil
	}
	s := t.pool[t.depth-1]
	if s.state != entities.StatePrepared {
		return nil
	}
	return s
}

func (s *slot) dispatchError(kind errors.DispatchKind, err error) *errors.DispatchError {
	return &errors.DispatchError{
		Kind:        kind,
		Label:       s.label.String(),
		Module:      s.module,
		Function:    s.decl.Name,
		Declaration: s.decl.String(),
		State:       s.state,
		Err:         err,
	}
}

// Prepare acquires the context at the current depth for handle h. The
// label names the call site in diagnostics. The outermost Prepare of a
// thread takes the execution lock and registers with the watchdog.
func (t *Thread) Prepare(h entities.Handle, label string) error {
	if t.depth == len(t.pool) {
		t.logPool(label)
		return &errors.DispatchError{Kind: errors.DispatchPoolExhausted, Label: label}
	}

	bound, ok := t.rt.Binding(h)
	if !ok {
		return &errors.DispatchError{Kind: errors.DispatchNotCallable, Label: label, Err: fmt.Errorf("handle %d is not bound", h)}
	}
	decl, err := entities.ParseDeclaration(bound.Declaration())
	if err != nil {
		return &errors.DispatchError{Kind: errors.DispatchNotCallable, Label: label, Err: err}
	}

	s := t.pool[t.depth]
	t.mu.Lock()
	s.reset()
	s.bound = bound
	t.mu.Unlock()
	s.label.Set(label)
	s.decl = decl

	switch f := bound.(type) {
	case entities.ScriptCall:
		s.module = f.Module
		if !f.Resolved() {
			return s.dispatchError(errors.DispatchNotCallable, fmt.Errorf("handle %d was zeroed", h))
		}
		if err := s.ctx.Prepare(f.ID); err != nil {
			return s.dispatchError(errors.DispatchNotCallable, err)
		}
	case entities.NativeCall:
		s.module = f.Library
		s.native = t.rt.nativeTarget(f.Address)
		if s.native == nil {
			return s.dispatchError(errors.DispatchNotCallable, fmt.Errorf("native address %d does not resolve", f.Address))
		}
	}

	if t.depth == 0 {
		t.enter()
	}
	t.mu.Lock()
	s.state = entities.StatePrepared
	t.mu.Unlock()
	t.depth++
	return nil
}

// logPool reports every held context when the pool is exhausted.
func (t *Thread) logPool(label string) {
	t.rt.logger.Error("context pool exhausted",
		"thread", t.id,
		"label", label,
		"depth", len(t.pool))
	for i, s := range t.pool {
		frames := s.ctx.CallStack()
		stack := make([]string, len(frames))
		for j, f := range frames {
			stack[j] = f.String()
		}
		t.rt.logger.Error("context in use",
			"thread", t.id,
			"depth", i,
			"label", s.label.String(),
			"module", s.module,
			"function", s.decl.Name,
			"stack", stack)
	}
}

// SetArgValue sets the next argument in declared parameter order. An extra
// or uncoercible argument marks the context broken and RunPrepared fails.
func (t *Thread) SetArgValue(v entities.Value) error {
	s := t.current()
	if s == nil {
		return &errors.DispatchError{Kind: errors.DispatchNotPrepared}
	}
	i := s.nargs
	s.nargs++
	if s.broken != nil {
		return s.dispatchError(errors.DispatchBadArgument, s.broken)
	}
	if i >= len(s.decl.Params) {
		s.broken = fmt.Errorf("argument %d beyond the %d declared", i+1, len(s.decl.Params))
		return s.dispatchError(errors.DispatchBadArgument, s.broken)
	}
	cv, err := v.Coerce(s.decl.Params[i])
	if err != nil {
		s.broken = fmt.Errorf("argument %d: %w", i+1, err)
		return s.dispatchError(errors.DispatchBadArgument, s.broken)
	}
	if s.native != nil {
		s.args[i] = cv
		return nil
	}
	if err := s.ctx.SetArg(i, cv); err != nil {
		s.broken = fmt.Errorf("argument %d: %w", i+1, err)
		return s.dispatchError(errors.DispatchBadArgument, s.broken)
	}
	return nil
}

func (t *Thread) SetArgBool(b bool) error { return t.SetArgValue(entities.BoolValue(b)) }

func (t *Thread) SetArgInt(i int64) error { return t.SetArgValue(entities.IntValue(i)) }

func (t *Thread) SetArgUInt(u uint64) error { return t.SetArgValue(entities.UintValue(u)) }

func (t *Thread) SetArgFloat(f float64) error { return t.SetArgValue(entities.FloatValue(f)) }

func (t *Thread) SetArgString(s string) error { return t.SetArgValue(entities.StringValue(s)) }

// RunPrepared executes the prepared context. Any outcome other than a
// finished call is logged with the call stack and returned as a
// *errors.DispatchError; the context is then aborted. The context always
// returns to the pool, and the return value stays readable until the next
// Prepare at this depth.
func (t *Thread) RunPrepared() error {
	s := t.current()
	if s == nil {
		return &errors.DispatchError{Kind: errors.DispatchNotPrepared}
	}
	defer t.release(s)

	if s.broken == nil && s.nargs < len(s.decl.Params) {
		s.broken = fmt.Errorf("%d of %d arguments set", s.nargs, len(s.decl.Params))
	}
	if s.broken != nil {
		t.finish(s, entities.StateAborted)
		if s.native == nil {
			s.ctx.Abort()
		}
		err := s.dispatchError(errors.DispatchBadArgument, s.broken)
		t.rt.logger.Error("script call not run", "label", err.Label, "module", err.Module,
			"function", err.Function, "declaration", err.Declaration, "error", s.broken)
		return err
	}

	ctx, cancel := context.WithCancel(t.rt.ctx)
	defer cancel()
	ctx = hostfuncs.WithSynchronizer(context.WithValue(ctx, threadKey{}, t), t)

	t.mu.Lock()
	s.cancel = cancel
	s.state = entities.StateExecuting
	t.mu.Unlock()

	if s.native != nil {
		return t.runNative(ctx, s)
	}
	return t.runScript(ctx, s)
}

func (t *Thread) finish(s *slot, state entities.ContextState) {
	t.mu.Lock()
	s.state = state
	s.cancel = nil
	t.mu.Unlock()
}

func (t *Thread) runScript(ctx context.Context, s *slot) error {
	state := s.ctx.Execute(ctx)
	t.finish(s, state)
	if state == entities.StateFinished {
		s.ret = s.ctx.Return()
		if s.decl.Return.Kind() != entities.KindVoid {
			if v, err := s.ret.Coerce(s.decl.Return); err == nil {
				s.ret = v
			}
		}
		s.ctx.Unprepare()
		return nil
	}

	err := s.dispatchError(errors.DispatchNotFinished, nil)
	err.Exception = s.ctx.Exception()
	err.Frames = s.ctx.CallStack()
	t.logFailure(err)
	s.ctx.Abort()
	return err
}

func (t *Thread) runNative(ctx context.Context, s *slot) error {
	ret, callErr := s.native.call(ctx, s.args[:len(s.decl.Params)])
	if callErr == nil {
		t.finish(s, entities.StateFinished)
		s.ret = ret
		if s.decl.Return.Kind() != entities.KindVoid {
			if v, err := ret.Coerce(s.decl.Return); err == nil {
				s.ret = v
			}
		}
		return nil
	}

	state, kind := entities.StateException, errors.DispatchNative
	if ctx.Err() != nil {
		state, kind = entities.StateSuspended, errors.DispatchNotFinished
	}
	t.finish(s, state)
	err := s.dispatchError(kind, callErr)
	err.Exception = callErr.Error()
	t.logFailure(err)
	return err
}

func (t *Thread) logFailure(err *errors.DispatchError) {
	stack := make([]string, len(err.Frames))
	for i, f := range err.Frames {
		stack[i] = f.String()
	}
	t.rt.logger.Error("script call did not finish",
		"state", err.State.String(),
		"label", err.Label,
		"module", err.Module,
		"function", err.Function,
		"declaration", err.Declaration,
		"exception", err.Exception,
		"stack", stack)
}

// release returns s to the pool. The depth counter drops exactly once per
// dispatch.
func (t *Thread) release(s *slot) {
	t.mu.Lock()
	s.cancel = nil
	t.mu.Unlock()
	t.depth--
	if t.depth == 0 {
		t.leave()
	}
}

// Unprepare releases a prepared context that was not run.
func (t *Thread) Unprepare() {
	s := t.current()
	if s == nil {
		return
	}
	if s.native == nil {
		s.ctx.Unprepare()
	}
	t.finish(s, entities.StateUninitialized)
	t.release(s)
}

// returned is the context of the last completed dispatch at the current depth.
func (t *Thread) returned() *slot {
	if t.depth >= len(t.pool) {
		return nil
	}
	return t.pool[t.depth]
}

// ReturnedValue returns the result of the last call run at this depth.
func (t *Thread) ReturnedValue() entities.Value {
	s := t.returned()
	if s == nil || s.state != entities.StateFinished {
		return entities.Void
	}
	return s.ret
}

func (t *Thread) ReturnedBool() bool { return t.ReturnedValue().Bool() }

func (t *Thread) ReturnedInt() int64 { return t.ReturnedValue().Int() }

func (t *Thread) ReturnedUInt() uint64 { return t.ReturnedValue().Uint() }

func (t *Thread) ReturnedFloat() float64 { return t.ReturnedValue().Float() }

func (t *Thread) ReturnedString() string { return t.ReturnedValue().String() }

// Call prepares h, sets args coerced to the declared parameter types, runs
// it and returns the result.
func (t *Thread) Call(h entities.Handle, label string, args ...any) (entities.Value, error) {
	if err := t.Prepare(h, label); err != nil {
		return entities.Void, err
	}
	for _, arg := range args {
		v, err := entities.ValueOf(arg)
		if err == nil {
			err = t.SetArgValue(v)
		}
		if err != nil {
			t.Unprepare()
			return entities.Void, err
		}
	}
	if err := t.RunPrepared(); err != nil {
		return entities.Void, err
	}
	return t.ReturnedValue(), nil
}
