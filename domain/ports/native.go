package ports

import (
	"context"

	"github.com/reglet-dev/scripthost/domain/entities"
)

// NativeLoader loads native libraries by path relative to the scripts directory.
type NativeLoader interface {
	Load(ctx context.Context, path string) (NativeLibrary, error)
	Close(ctx context.Context) error
}

// NativeLibrary is a loaded native library.
type NativeLibrary interface {
	Name() string
	Resolve(symbol string) (NativeFunction, bool)
}

// NativeFunction is a resolved native export.
type NativeFunction interface {
	Symbol() string
	ParamCount() int
	Call(ctx context.Context, args []entities.Value) (entities.Value, error)
}

// NativeHooks are the host services a native library can import: shared
// globals, data blocks and the log callback.
type NativeHooks interface {
	Global(name string) (SharedGlobal, bool)
	DataBlock(name string) ([]byte, bool)
	Log(ctx context.Context, library string, payload []byte)
}
