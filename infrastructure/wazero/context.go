package wazero

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// contextKey is a private type for context keys.
type contextKey struct {
	name string
}

var libraryNameKey = &contextKey{name: "library_name"}

// WithLibraryName adds the calling library's name to the context.
// Host imports use it to attribute log messages and failures.
func WithLibraryName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, libraryNameKey, name)
}

// LibraryNameFromContext retrieves the library name from the context.
func LibraryNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(libraryNameKey).(string)
	return name, ok
}

// GetLibraryName extracts the library name from context, falling back to the module name.
func GetLibraryName(ctx context.Context, mod api.Module) string {
	if name, ok := LibraryNameFromContext(ctx); ok {
		return name
	}
	return mod.Name()
}
