package wazero

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/errors"
	"github.com/reglet-dev/scripthost/domain/ports"
)

var (
	_ ports.NativeLoader   = (*Loader)(nil)
	_ ports.NativeLibrary  = (*Library)(nil)
	_ ports.NativeFunction = (*Function)(nil)
)

// InitExport is the optional library entry point, called with the
// compile-only flag after every instantiation.
const InitExport = "scripthost_init"

type loaderConfig struct {
	logger      *slog.Logger
	hooks       ports.NativeHooks
	cacheDir    string
	adapterOpts []AdapterOption
	memoryPages uint32
	compileOnly bool
}

func defaultLoaderConfig() loaderConfig {
	return loaderConfig{logger: slog.Default()}
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithLogger sets the loader logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(c *loaderConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNativeHooks sets the host services imported by libraries.
func WithNativeHooks(hooks ports.NativeHooks) LoaderOption {
	return func(c *loaderConfig) {
		c.hooks = hooks
	}
}

// WithCompilationCacheDir enables wazero's on-disk compilation cache.
func WithCompilationCacheDir(dir string) LoaderOption {
	return func(c *loaderConfig) {
		c.cacheDir = dir
	}
}

// WithCompileOnly sets the flag passed to every library init export.
func WithCompileOnly(compileOnly bool) LoaderOption {
	return func(c *loaderConfig) {
		c.compileOnly = compileOnly
	}
}

// WithMemoryLimitPages caps library memory (64KiB pages).
func WithMemoryLimitPages(pages uint32) LoaderOption {
	return func(c *loaderConfig) {
		c.memoryPages = pages
	}
}

// WithAdapterOptions passes options to the host module.
func WithAdapterOptions(opts ...AdapterOption) LoaderOption {
	return func(c *loaderConfig) {
		c.adapterOpts = append(c.adapterOpts, opts...)
	}
}

// Loader loads native libraries from an fs.FS into one wazero runtime.
// Each library is loaded once; Load of a loaded path returns it again.
type Loader struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	fsys    fs.FS
	libs    map[string]*Library
	config  loaderConfig
	mu      sync.Mutex
}

// NewLoader creates a Loader. Library calls are closed when their context
// is cancelled; the library is instantiated again on its next call.
func NewLoader(ctx context.Context, fsys fs.FS, opts ...LoaderOption) (*Loader, error) {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	rcfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.memoryPages > 0 {
		rcfg = rcfg.WithMemoryLimitPages(cfg.memoryPages)
	}
	var cache wazero.CompilationCache
	if cfg.cacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache: %w", err)
		}
		rcfg = rcfg.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rcfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}
	adapterOpts := append([]AdapterOption{WithHooks(cfg.hooks)}, cfg.adapterOpts...)
	if err := RegisterHostModule(ctx, rt, adapterOpts...); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return &Loader{
		runtime: rt,
		cache:   cache,
		fsys:    fsys,
		libs:    make(map[string]*Library),
		config:  cfg,
	}, nil
}

// Load compiles and instantiates the library at name, then runs its init export.
func (l *Loader) Load(ctx context.Context, name string) (ports.NativeLibrary, error) {
	name = path.Clean(name)

	l.mu.Lock()
	defer l.mu.Unlock()
	if lib, ok := l.libs[name]; ok {
		return lib, nil
	}

	binary, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return nil, &errors.NativeError{Library: name, Err: err}
	}
	compiled, err := l.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, &errors.NativeError{Library: name, Err: fmt.Errorf("compile: %w", err)}
	}

	lib := &Library{loader: l, name: name, compiled: compiled}
	lib.mu.Lock()
	err = lib.instantiateLocked(ctx)
	lib.mu.Unlock()
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	l.libs[name] = lib
	l.config.logger.DebugContext(ctx, "native library loaded", "library", name, "exports", len(compiled.ExportedFunctions()))
	return lib, nil
}

// Close releases every library and the runtime.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.libs = map[string]*Library{}
	err := l.runtime.Close(ctx)
	if l.cache != nil {
		if cerr := l.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// Library is a loaded native library. Calls into it are serialized.
type Library struct {
	loader   *Loader
	compiled wazero.CompiledModule
	module   api.Module
	name     string
	mu       sync.Mutex
}

func (lib *Library) Name() string { return lib.name }

// Resolve looks up an exported function.
func (lib *Library) Resolve(symbol string) (ports.NativeFunction, bool) {
	def, ok := lib.compiled.ExportedFunctions()[symbol]
	if !ok {
		return nil, false
	}
	return &Function{lib: lib, symbol: symbol, def: def}, true
}

func (lib *Library) instantiateLocked(ctx context.Context) error {
	ctx = WithLibraryName(ctx, lib.name)
	cfg := wazero.NewModuleConfig().
		WithName(lib.name).
		WithStartFunctions("_initialize")
	mod, err := lib.loader.runtime.InstantiateModule(ctx, lib.compiled, cfg)
	if err != nil {
		return &errors.NativeError{Library: lib.name, Err: fmt.Errorf("instantiate: %w", err)}
	}

	if init := mod.ExportedFunction(InitExport); init != nil {
		flag := uint64(0)
		if lib.loader.config.compileOnly {
			flag = 1
		}
		if _, err := init.Call(ctx, flag); err != nil {
			_ = mod.Close(ctx)
			return &errors.NativeError{Library: lib.name, Symbol: InitExport, Err: err}
		}
	}
	lib.module = mod
	return nil
}

// Function is a resolved library export.
type Function struct {
	lib    *Library
	def    api.FunctionDefinition
	symbol string
}

func (f *Function) Symbol() string { return f.symbol }

func (f *Function) ParamCount() int { return len(f.def.ParamTypes()) }

// Call invokes the export. Arguments are encoded by the export's wasm
// parameter types and the first result, if any, is decoded the same way.
func (f *Function) Call(ctx context.Context, args []entities.Value) (entities.Value, error) {
	params := f.def.ParamTypes()
	if len(args) != len(params) {
		return entities.Void, &errors.NativeError{
			Library: f.lib.name, Symbol: f.symbol,
			Err: fmt.Errorf("got %d arguments, export takes %d", len(args), len(params)),
		}
	}
	stack := make([]uint64, len(params))
	for i, t := range params {
		stack[i] = encode(t, args[i])
	}

	f.lib.mu.Lock()
	defer f.lib.mu.Unlock()
	if f.lib.module == nil || f.lib.module.IsClosed() {
		if err := f.lib.instantiateLocked(ctx); err != nil {
			return entities.Void, err
		}
	}
	fn := f.lib.module.ExportedFunction(f.symbol)
	if fn == nil {
		return entities.Void, &errors.NativeError{Library: f.lib.name, Symbol: f.symbol, Err: fmt.Errorf("export not found")}
	}

	results, err := fn.Call(WithLibraryName(ctx, f.lib.name), stack...)
	if err != nil {
		return entities.Void, &errors.NativeError{Library: f.lib.name, Symbol: f.symbol, Err: err}
	}
	if len(results) == 0 {
		return entities.Void, nil
	}
	return decode(f.def.ResultTypes()[0], results[0]), nil
}

func encode(t api.ValueType, v entities.Value) uint64 {
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(v.Int())) //nolint:gosec // G115: truncation to the declared wasm width
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v.Float()))
	case api.ValueTypeF64:
		return api.EncodeF64(v.Float())
	default:
		return api.EncodeI64(v.Int())
	}
}

func decode(t api.ValueType, raw uint64) entities.Value {
	switch t {
	case api.ValueTypeI32:
		return entities.IntValue(int64(api.DecodeI32(raw)))
	case api.ValueTypeF32:
		return entities.FloatValue(float64(api.DecodeF32(raw)))
	case api.ValueTypeF64:
		return entities.FloatValue(api.DecodeF64(raw))
	default:
		return entities.IntValue(int64(raw)) //nolint:gosec // G115: two's complement passes through i64
	}
}
