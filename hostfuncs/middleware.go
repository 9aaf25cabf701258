package hostfuncs

import (
	"context"
	"log/slog"
	"time"

	"github.com/reglet-dev/scripthost/domain/entities"
)

// Middleware wraps a Handler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next Handler) Handler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

func functionName(ctx context.Context) string {
	if hc, ok := ctx.(HostContext); ok {
		return hc.FunctionName()
	}
	return "unknown"
}

// PanicRecoveryMiddleware converts a panicking handler into a returned
// *HostError so a misbehaving host function cannot take down the thread.
func PanicRecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, args []entities.Value) (ret entities.Value, err error) {
			defer func() {
				if r := recover(); r != nil {
					ret = entities.Void
					err = NewPanicError(functionName(ctx), r)
				}
			}()
			return next(ctx, args)
		}
	}
}

// LoggingMiddleware logs every invocation at debug level and failures at warn level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, args []entities.Value) (entities.Value, error) {
			name := functionName(ctx)
			start := time.Now()
			ret, err := next(ctx, args)
			if err != nil {
				logger.WarnContext(ctx, "host function failed", "function", name, "error", err)
			} else {
				logger.DebugContext(ctx, "host function completed", "function", name, "duration", time.Since(start))
			}
			return ret, err
		}
	}
}
