package hostfuncs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/reglet-dev/scripthost/domain/entities"
)

// HostFuncBundle is a pre-configured set of related host functions.
// Bundles allow registering multiple functions at once.
type HostFuncBundle interface {
	// Functions maps declarations to handlers.
	Functions() map[string]Handler
}

type staticBundle struct {
	functions map[string]Handler
}

func (b *staticBundle) Functions() map[string]Handler {
	return b.functions
}

// ErrNoSynchronizer is returned by the synchronize builtins when the call
// does not come from a script thread.
var ErrNoSynchronizer = errors.New("no synchronize section on this call path")

func synchronizer(ctx context.Context, fn func(Synchronizer)) (entities.Value, error) {
	s, ok := SynchronizerFrom(ctx)
	if !ok {
		return entities.Void, ErrNoSynchronizer
	}
	fn(s)
	return entities.Void, nil
}

// CoreBundle returns the built-in functions every runtime registers:
// Synchronize, Desynchronize, Resynchronize and Log.
func CoreBundle(logger *slog.Logger) HostFuncBundle {
	if logger == nil {
		logger = slog.Default()
	}
	return &staticBundle{
		functions: map[string]Handler{
			"void Synchronize()": func(ctx context.Context, _ []entities.Value) (entities.Value, error) {
				return synchronizer(ctx, Synchronizer.Synchronize)
			},
			"void Desynchronize()": func(ctx context.Context, _ []entities.Value) (entities.Value, error) {
				return synchronizer(ctx, Synchronizer.Desynchronize)
			},
			"void Resynchronize()": func(ctx context.Context, _ []entities.Value) (entities.Value, error) {
				return synchronizer(ctx, Synchronizer.Resynchronize)
			},
			"void Log(const string &in message)": func(ctx context.Context, args []entities.Value) (entities.Value, error) {
				buf := NewBoundedBuffer(DefaultMaxMessageSize)
				buf.Set(args[0].String())
				logger.InfoContext(ctx, buf.String(), "source", "script", "truncated", buf.Truncated)
				return entities.Void, nil
			},
		},
	}
}

type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Functions() map[string]Handler {
	result := make(map[string]Handler)
	for _, bundle := range b.bundles {
		for decl, handler := range bundle.Functions() {
			result[decl] = handler
		}
	}
	return result
}

// Bundles combines several bundles into one.
func Bundles(bundles ...HostFuncBundle) HostFuncBundle {
	return &compositeBundle{bundles: bundles}
}

// WithBundle registers every function of a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for decl, handler := range bundle.Functions() {
			if err := b.addFunction(decl, handler); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}
