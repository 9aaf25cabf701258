package host

import (
	"io/fs"
	"log/slog"
	"time"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
	"github.com/reglet-dev/scripthost/hostfuncs"
)

// Option defines a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConfig replaces the whole runtime configuration.
func WithConfig(cfg entities.RuntimeConfig) Option {
	return func(r *Runtime) {
		r.config = cfg
	}
}

// WithRuntimeOptions applies configuration options on top of the current
// configuration.
func WithRuntimeOptions(opts ...entities.RuntimeOption) Option {
	return func(r *Runtime) {
		for _, opt := range opts {
			opt(&r.config)
		}
	}
}

// WithEngine sets the script engine. The default is the goja engine.
func WithEngine(engine ports.ScriptEngine) Option {
	return func(r *Runtime) {
		r.engine = engine
	}
}

// WithNativeLoader sets the native library loader. The default loads
// WebAssembly libraries from the source filesystem with wazero.
func WithNativeLoader(loader ports.NativeLoader) Option {
	return func(r *Runtime) {
		r.loader = loader
	}
}

// WithStore sets the bytecode store. The default is selected by the cache
// configuration.
func WithStore(store ports.BytecodeStore) Option {
	return func(r *Runtime) {
		r.store = store
	}
}

// WithSourceFS sets the filesystem module sources and native libraries are
// read from. The default is the scripts directory.
func WithSourceFS(fsys fs.FS) Option {
	return func(r *Runtime) {
		r.sourceFS = fsys
	}
}

// WithPreprocessor sets the source preprocessor.
func WithPreprocessor(p ports.Preprocessor) Option {
	return func(r *Runtime) {
		r.preprocessor = p
	}
}

// WithHostFunctions configures the runtime with a host function registry.
// Functions named Synchronize, Desynchronize, Resynchronize and Log are
// exposed to every script; the rest are reached through "@host" binds.
func WithHostFunctions(registry *hostfuncs.HandlerRegistry) Option {
	return func(r *Runtime) {
		r.hostFuncs = registry
	}
}

// WithPragmaHandler adds or replaces the handler of one pragma tag.
func WithPragmaHandler(h ports.PragmaHandler) Option {
	return func(r *Runtime) {
		r.extraPragmas = append(r.extraPragmas, h)
	}
}

// WithClock replaces the time source of the watchdog, the GC scheduler and
// the cache freshness check.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		if now != nil {
			r.now = now
		}
	}
}
