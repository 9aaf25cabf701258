package hostfuncs

import (
	"context"
)

// HostContext wraps a standard context.Context with host function helpers.
// It carries the invoked function name and request-scoped values that
// middleware can share without growing the context chain.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string

	// SetValue stores a request-scoped value. Unlike context.WithValue,
	// this mutates the existing HostContext.
	SetValue(key, value any)

	// GetValue retrieves a request-scoped value set by SetValue.
	GetValue(key any) (value any, ok bool)
}

type hostContext struct {
	context.Context
	values   map[any]any
	funcName string
}

// NewHostContext creates a new HostContext wrapping the given context.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	return &hostContext{
		Context:  ctx,
		funcName: funcName,
		values:   make(map[any]any),
	}
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

func (c *hostContext) SetValue(key, value any) {
	c.values[key] = value
}

func (c *hostContext) GetValue(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Synchronizer is the calling thread's view of the synchronize section.
type Synchronizer interface {
	// Synchronize enters the section. Entering is reentrant.
	Synchronize()
	// Desynchronize leaves one level of the section.
	Desynchronize()
	// Resynchronize lets queued threads through and re-enters at the same depth.
	Resynchronize()
}

type synchronizerKey struct{}

// WithSynchronizer attaches the calling thread's Synchronizer to ctx.
func WithSynchronizer(ctx context.Context, s Synchronizer) context.Context {
	return context.WithValue(ctx, synchronizerKey{}, s)
}

// SynchronizerFrom returns the Synchronizer attached to ctx.
func SynchronizerFrom(ctx context.Context) (Synchronizer, bool) {
	s, ok := ctx.Value(synchronizerKey{}).(Synchronizer)
	return s, ok
}
