package goja

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

var _ ports.ScriptContext = (*Context)(nil)

// ErrSuspended is the interrupt value of a suspended execution.
var ErrSuspended = errors.New("execution suspended")

// Context is a reusable call stack bound to a realm.
type Context struct {
	realm     *Realm
	fn        *function
	running   *goja.Runtime
	ret       entities.Value
	exception string
	args      []entities.Value
	frames    []entities.CallFrame
	state     entities.ContextState
	mu        sync.Mutex
	suspend   atomic.Bool
}

// Prepare selects the function to run. Any previous result is dropped.
func (c *Context) Prepare(id entities.FuncID) error {
	if c.state == entities.StateExecuting {
		return fmt.Errorf("prepare: context is executing")
	}
	fn, ok := c.realm.engine.lookup(id)
	if !ok {
		return fmt.Errorf("prepare: function %d does not resolve", id)
	}
	c.reset()
	c.fn = fn
	c.state = entities.StatePrepared
	return nil
}

// SetArg sets the argument at index.
func (c *Context) SetArg(index int, value entities.Value) error {
	if c.state != entities.StatePrepared {
		return fmt.Errorf("set argument %d: context is %s", index, c.state)
	}
	if index < 0 || index >= c.fn.params && !c.fn.rest {
		return fmt.Errorf("set argument %d: %s takes %d arguments", index, c.fn.name, c.fn.params)
	}
	for len(c.args) <= index {
		c.args = append(c.args, entities.Void)
	}
	c.args[index] = value
	return nil
}

// Execute runs the prepared function to a terminal state. Cancelling ctx
// interrupts the script like Suspend does.
func (c *Context) Execute(ctx context.Context) entities.ContextState {
	if c.state != entities.StatePrepared {
		c.exception = fmt.Sprintf("execute called in state %s", c.state)
		c.state = entities.StateError
		return c.state
	}
	c.state = entities.StateExecuting

	r := c.realm
	r.contexts = append(r.contexts, ctx)
	defer func() { r.contexts = r.contexts[:len(r.contexts)-1] }()

	inst, err := r.instance(c.fn.module, c)
	if err != nil {
		return c.finish(nil, err)
	}
	call, err := inst.callable(c.fn)
	if err != nil {
		return c.finish(nil, err)
	}
	args := make([]goja.Value, len(c.args))
	for i, a := range c.args {
		args[i] = toJS(inst.rt, a)
	}

	if inst.depth == 0 {
		inst.rt.ClearInterrupt()
	}
	inst.depth++
	c.attach(inst.rt)
	stop := context.AfterFunc(ctx, func() { inst.rt.Interrupt(ctx.Err()) })
	ret, err := call(goja.Undefined(), args...)
	stop()
	c.detach()
	inst.depth--
	if inst.depth == 0 {
		inst.rt.ClearInterrupt()
	}
	return c.finish(ret, err)
}

func (c *Context) attach(rt *goja.Runtime) {
	c.mu.Lock()
	c.running = rt
	c.mu.Unlock()
	if c.suspend.Load() {
		rt.Interrupt(ErrSuspended)
	}
}

func (c *Context) detach() {
	c.mu.Lock()
	c.running = nil
	c.mu.Unlock()
}

func (c *Context) finish(ret goja.Value, err error) entities.ContextState {
	var (
		interrupted *goja.InterruptedError
		overflow    *goja.StackOverflowError
		exception   *goja.Exception
	)
	switch {
	case err == nil:
		c.ret = exportValue(ret)
		c.state = entities.StateFinished
	case errors.As(err, &interrupted):
		c.exception = fmt.Sprint(interrupted.Value())
		c.frames = convertFrames(interrupted.Stack())
		c.state = entities.StateSuspended
	case errors.As(err, &overflow):
		c.exception = "stack overflow"
		c.frames = convertFrames(overflow.Stack())
		c.state = entities.StateException
	case errors.As(err, &exception):
		if v := exception.Value(); v != nil {
			c.exception = v.String()
		} else {
			c.exception = exception.Error()
		}
		c.frames = convertFrames(exception.Stack())
		c.state = entities.StateException
	default:
		c.exception = err.Error()
		c.state = entities.StateError
	}
	return c.state
}

func (c *Context) Return() entities.Value { return c.ret }

// Suspend interrupts the running script. Safe to call from any goroutine.
// A suspend requested before the script starts takes effect when it does.
func (c *Context) Suspend() {
	c.suspend.Store(true)
	c.mu.Lock()
	rt := c.running
	c.mu.Unlock()
	if rt != nil {
		rt.Interrupt(ErrSuspended)
	}
}

// Abort resets a context left in a non-finished state.
func (c *Context) Abort() {
	if c.state == entities.StateExecuting {
		c.Suspend()
		return
	}
	c.reset()
	c.state = entities.StateAborted
}

func (c *Context) Unprepare() {
	if c.state == entities.StateExecuting {
		return
	}
	c.reset()
	c.state = entities.StateUninitialized
}

func (c *Context) reset() {
	c.fn = nil
	c.args = c.args[:0]
	c.ret = entities.Void
	c.exception = ""
	c.frames = nil
	c.suspend.Store(false)
}

func (c *Context) State() entities.ContextState { return c.state }

func (c *Context) Exception() string { return c.exception }

// CallStack returns the live stack while executing, otherwise the stack
// captured when the last execution failed.
func (c *Context) CallStack() []entities.CallFrame {
	c.mu.Lock()
	rt := c.running
	c.mu.Unlock()
	if rt != nil {
		return convertFrames(rt.CaptureCallStack(0, nil))
	}
	return append([]entities.CallFrame(nil), c.frames...)
}

func convertFrames(stack []goja.StackFrame) []entities.CallFrame {
	frames := make([]entities.CallFrame, 0, len(stack))
	for i := range stack {
		f := &stack[i]
		if f.SrcName() == "<native>" {
			continue
		}
		pos := f.Position()
		frames = append(frames, entities.CallFrame{
			Module:   f.SrcName(),
			Function: f.FuncName(),
			Line:     pos.Line,
			Column:   pos.Column,
		})
	}
	return frames
}
