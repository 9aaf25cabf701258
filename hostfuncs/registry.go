package hostfuncs

import (
	"context"
	"fmt"
	"sort"

	"github.com/reglet-dev/scripthost/domain/entities"
)

// HandlerRegistry is an immutable collection of named host functions.
// Once created via NewRegistry, functions cannot be added or removed,
// so lookups need no locking.
type HandlerRegistry struct {
	functions map[string]*Function
	names     []string // sorted for consistent iteration
}

// registryBuilder accumulates configuration during registry construction.
type registryBuilder struct {
	functions  map[string]*Function
	middleware []Middleware
	errors     []error
}

// NewRegistry creates an immutable HandlerRegistry with the given options.
// Returns an error if a declaration does not parse or a name is registered twice.
//
// Example usage:
//
//	registry, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware(), LoggingMiddleware(logger)),
//	    WithBundle(CoreBundle(logger)),
//	    WithFunction("int Roll(int sides)", roll),
//	)
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{
		functions: make(map[string]*Function),
	}

	for _, opt := range opts {
		opt(b)
	}

	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	names := make([]string, 0, len(b.functions))
	for name := range b.functions {
		names = append(names, name)
	}
	sort.Strings(names)

	// First middleware wraps outermost.
	for _, fn := range b.functions {
		for i := len(b.middleware) - 1; i >= 0; i-- {
			fn.Handler = b.middleware[i](fn.Handler)
		}
	}

	return &HandlerRegistry{
		functions: b.functions,
		names:     names,
	}, nil
}

// Lookup returns the function registered under name.
func (r *HandlerRegistry) Lookup(name string) (*Function, bool) {
	if r == nil {
		return nil, false
	}
	fn, ok := r.functions[name]
	return fn, ok
}

// Invoke dispatches a host function call by name.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, args []entities.Value) (entities.Value, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return entities.Void, NewNotFoundError(name)
	}
	return fn.Call(ctx, args)
}

// Has returns true if a function with the given name is registered.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns a sorted list of all registered function names.
func (r *HandlerRegistry) Names() []string {
	if r == nil {
		return nil
	}
	result := make([]string, len(r.names))
	copy(result, r.names)
	return result
}

// addFunction registers a handler under its declaration's name.
func (b *registryBuilder) addFunction(declaration string, handler Handler) error {
	decl, err := entities.ParseDeclaration(declaration)
	if err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("host function %q has no handler", decl.Name)
	}
	if _, exists := b.functions[decl.Name]; exists {
		return fmt.Errorf("duplicate host function name: %q", decl.Name)
	}
	b.functions[decl.Name] = &Function{Decl: decl, Handler: handler}
	return nil
}

// WithFunction registers a handler with the given declaration,
// e.g. "float Distance(float, float)".
func WithFunction(declaration string, handler Handler) RegistryOption {
	return func(b *registryBuilder) {
		if err := b.addFunction(declaration, handler); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}

// WithJSONHandler registers a typed host function as "string name(string)".
//
// Example usage:
//
//	WithJSONHandler("Lookup", func(ctx context.Context, req Query) (Answer, error) {
//	    return Answer{Result: req.Input}, nil
//	})
func WithJSONHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		if err := b.addFunction(fmt.Sprintf(JSONDeclaration, name), NewJSONHandler(fn)); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}

// WithMiddleware adds middleware to the registry.
// Middleware executes in FIFO order (first added wraps first).
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
