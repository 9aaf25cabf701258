package goja

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

var _ ports.ScriptRealm = (*Realm)(nil)

var errRealmClosed = errors.New("realm is closed")

// instance is one module's runtime inside a realm.
type instance struct {
	rt        *goja.Runtime
	module    *Module
	callables map[entities.FuncID]goja.Callable
	depth     int
}

func (inst *instance) callable(fn *function) (goja.Callable, error) {
	if c, ok := inst.callables[fn.id]; ok {
		return c, nil
	}
	c, ok := goja.AssertFunction(inst.rt.Get(fn.name))
	if !ok {
		return nil, fmt.Errorf("%s::%s is not a function", fn.module.name, fn.name)
	}
	inst.callables[fn.id] = c
	return c, nil
}

// Realm holds a thread's module instances.
type Realm struct {
	engine    *Engine
	instances map[*Module]*instance
	contexts  []context.Context
	closed    bool
}

func (r *Realm) NewContext() ports.ScriptContext {
	return &Context{realm: r}
}

// Close drops every instance. Contexts of a closed realm fail to execute.
func (r *Realm) Close() {
	r.closed = true
	r.instances = nil
}

// Instances returns the number of live module instances.
func (r *Realm) Instances() int {
	return len(r.instances)
}

// context returns the context of the innermost running execution.
func (r *Realm) context() context.Context {
	if n := len(r.contexts); n > 0 {
		return r.contexts[n-1]
	}
	return context.Background()
}

// instance returns the runtime of m, creating it on first use. Top-level
// code runs with c attached so it can be suspended like any call.
func (r *Realm) instance(m *Module, c *Context) (*instance, error) {
	if r.closed {
		return nil, errRealmClosed
	}
	if inst, ok := r.instances[m]; ok {
		return inst, nil
	}
	for mod, inst := range r.instances {
		if mod.discarded.Load() && inst.depth == 0 {
			delete(r.instances, mod)
		}
	}

	rt := goja.New()
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	rt.SetMaxCallStackSize(r.engine.config.maxCallStackSize)
	if err := r.engine.install(rt, r); err != nil {
		return nil, err
	}

	inst := &instance{rt: rt, module: m, callables: make(map[entities.FuncID]goja.Callable)}
	inst.depth++
	c.attach(rt)
	_, err := rt.RunProgram(m.program)
	c.detach()
	inst.depth--
	rt.ClearInterrupt()
	if err != nil {
		return nil, err
	}
	r.instances[m] = inst
	return inst, nil
}
