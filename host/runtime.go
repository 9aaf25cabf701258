package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/policy"
	"github.com/reglet-dev/scripthost/domain/ports"
	"github.com/reglet-dev/scripthost/host/gcsched"
	"github.com/reglet-dev/scripthost/host/watchdog"
	"github.com/reglet-dev/scripthost/hostfuncs"
	"github.com/reglet-dev/scripthost/infrastructure/bytecodestore"
	"github.com/reglet-dev/scripthost/infrastructure/goja"
	"github.com/reglet-dev/scripthost/infrastructure/preprocessor"
	"github.com/reglet-dev/scripthost/infrastructure/wazero"
)

// builtins are the host functions every script sees without a bindfunc pragma.
var builtins = []string{"Synchronize", "Desynchronize", "Resynchronize", "Log"}

// Runtime is the script host application context.
type Runtime struct {
	ctx    context.Context
	cancel context.CancelFunc

	config       entities.RuntimeConfig
	logger       *slog.Logger
	now          func() time.Time
	engine       ports.ScriptEngine
	loader       ports.NativeLoader
	store        ports.BytecodeStore
	sourceFS     fs.FS
	preprocessor ports.Preprocessor
	hostFuncs    *hostfuncs.HandlerRegistry
	policy       *policy.GlobalTypePolicy
	cacheVersion uint32
	watchdog     *watchdog.Watchdog
	gc           *gcsched.Scheduler
	globals      *globalStore
	pragmas      map[string]ports.PragmaHandler
	extraPragmas []ports.PragmaHandler

	modules    map[string]*moduleEntry
	generation uint64
	modMu      sync.RWMutex

	bindings    []entities.BoundFunction
	lastBindErr error
	addresses   map[string]entities.NativeAddress
	nativeCalls []*nativeTarget
	bindMu      sync.RWMutex
	nativeMu    sync.Mutex

	// gcMu serializes compilation, module discard and collections.
	gcMu sync.Mutex

	// execMu is the exclusive execution lock used when concurrent
	// execution is disabled.
	execMu  sync.Mutex
	section *section

	threadIDs atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a Runtime. Collaborators not given as options are built from
// the configuration: the goja engine, a wazero loader over the scripts
// directory, the configured bytecode store and the preprocessor.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		config:  entities.DefaultRuntimeConfig(),
		logger:  slog.Default(),
		now:     time.Now,
		modules: make(map[string]*moduleEntry),
		// Handles 0 and 1 are reserved.
		bindings:  make([]entities.BoundFunction, entities.FirstStableHandle),
		addresses: make(map[string]entities.NativeAddress),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.globals = newGlobalStore()
	r.section = newSection()

	if r.sourceFS == nil {
		r.sourceFS = os.DirFS(r.config.ScriptsDir)
	}
	if r.engine == nil {
		r.engine = goja.New(goja.WithLogger(r.logger))
	}
	r.engine.SetMessageCallback(r.engineMessage)
	r.cacheVersion = unitVersion(r.engine.Version(), r.config.Defines)
	if r.preprocessor == nil {
		r.preprocessor = preprocessor.New(r.sourceFS, preprocessor.WithDefines(r.config.Defines...))
	}
	if r.store == nil && r.config.Cache.Enabled {
		store, err := bytecodestore.New(r.config.Cache, r.logger)
		if err != nil {
			r.cancel()
			return nil, fmt.Errorf("failed to open module cache: %w", err)
		}
		r.store = store
	}
	if r.loader == nil {
		loaderOpts := []wazero.LoaderOption{
			wazero.WithLogger(r.logger),
			wazero.WithNativeHooks(r),
			wazero.WithCompileOnly(r.config.Native.CompileOnly),
		}
		if r.config.Native.CacheDir != "" {
			loaderOpts = append(loaderOpts, wazero.WithCompilationCacheDir(r.config.Native.CacheDir))
		}
		loader, err := wazero.NewLoader(ctx, r.sourceFS, loaderOpts...)
		if err != nil {
			r.closeStore()
			r.cancel()
			return nil, fmt.Errorf("failed to create native loader: %w", err)
		}
		r.loader = loader
	}
	if r.hostFuncs == nil {
		reg, err := hostfuncs.NewRegistry(
			hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware(), hostfuncs.LoggingMiddleware(r.logger)),
			hostfuncs.WithBundle(hostfuncs.CoreBundle(r.logger)),
		)
		if err != nil {
			return nil, r.abortNew(ctx, fmt.Errorf("failed to create default registry: %w", err))
		}
		r.hostFuncs = reg
	}
	for _, name := range builtins {
		if fn, ok := r.hostFuncs.Lookup(name); ok {
			if err := r.engine.DefineNative(fn.Decl, fn.Call); err != nil {
				return nil, r.abortNew(ctx, fmt.Errorf("failed to define builtin %s: %w", name, err))
			}
		}
	}

	r.policy = policy.NewGlobalTypePolicy(
		policy.WithDisallowedTypes(r.config.Policy.DisallowedGlobalTypes...),
		policy.WithViolationHandler(&policy.SlogViolationHandler{Logger: r.logger}),
	)
	r.watchdog = watchdog.New(
		watchdog.WithLogger(r.logger),
		watchdog.WithClock(r.now),
		watchdog.WithPollInterval(r.config.Timeouts.PollInterval),
		watchdog.WithTimeouts(r.config.Timeouts.Suspend, r.config.Timeouts.Warn),
	)
	r.gc = gcsched.New(r.engine.Collector(),
		gcsched.WithConfig(r.config.GC),
		gcsched.WithLogger(r.logger),
		gcsched.WithClock(r.now),
	)

	r.pragmas = make(map[string]ports.PragmaHandler)
	for _, h := range r.defaultPragmaHandlers() {
		r.pragmas[h.Tag()] = h
	}
	for _, h := range r.extraPragmas {
		r.pragmas[h.Tag()] = h
	}
	return r, nil
}

func (r *Runtime) abortNew(ctx context.Context, err error) error {
	_ = r.loader.Close(ctx)
	r.closeStore()
	r.cancel()
	return err
}

func (r *Runtime) closeStore() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("failed to close module cache", "error", err)
		}
	}
}

// Config returns the configuration the runtime was built with.
func (r *Runtime) Config() entities.RuntimeConfig {
	return r.config
}

// Engine returns the script engine.
func (r *Runtime) Engine() ports.ScriptEngine {
	return r.engine
}

func (r *Runtime) engineMessage(msg entities.EngineMessage) {
	level := slog.LevelInfo
	switch msg.Type {
	case entities.MessageWarning:
		level = slog.LevelWarn
	case entities.MessageError:
		level = slog.LevelError
	}
	r.logger.Log(r.ctx, level, msg.Message,
		"module", msg.Section,
		"row", msg.Row,
		"col", msg.Col,
		"type", msg.Type.String())
}

// SetRunTimeout updates the watchdog thresholds. Zero disables either.
func (r *Runtime) SetRunTimeout(suspend, warn time.Duration) {
	r.watchdog.SetTimeouts(suspend, warn)
}

// ActiveContexts returns the outermost dispatches currently tracked by the
// watchdog.
func (r *Runtime) ActiveContexts() []entities.ActiveContextRecord {
	return r.watchdog.Active()
}

// CollectGarbage advances the GC scheduler by one step, or runs a full
// collection and restarts calibration when force is set.
func (r *Runtime) CollectGarbage(ctx context.Context, force bool) error {
	r.gcMu.Lock()
	defer r.gcMu.Unlock()
	if force {
		return r.gc.Force(ctx)
	}
	return r.gc.Tick(ctx)
}

// GCStats returns the scheduler statistics.
func (r *Runtime) GCStats() gcsched.Stats {
	return r.gc.Stats()
}

// Start runs the watchdog loop and, when enabled, the GC tick loop. It
// blocks until ctx is done or the runtime is closed.
func (r *Runtime) Start(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.watchdog.Run(ctx)
	}()

	if r.config.GC.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.gcLoop(ctx)
		}()
	}

	r.logger.InfoContext(ctx, "script host started",
		"modules", len(r.Modules()),
		"gc", r.config.GC.Enabled,
		"suspend_timeout", r.config.Timeouts.Suspend)
	wg.Wait()
	return nil
}

func (r *Runtime) gcLoop(ctx context.Context) {
	ticker := time.NewTicker(r.config.GC.StepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.CollectGarbage(ctx, false); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "garbage collection step failed", "error", err)
			}
		}
	}
}

// ErrClosed is returned by operations on a closed runtime.
var ErrClosed = errors.New("script host is closed")

// Close stops Start, discards every module and releases the loader and the
// store. Threads must not be used afterwards.
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.cancel()

		r.gcMu.Lock()
		r.modMu.Lock()
		for name, entry := range r.modules {
			r.engine.Discard(entry.module)
			delete(r.modules, name)
		}
		r.modMu.Unlock()
		r.gcMu.Unlock()

		r.bindMu.Lock()
		r.bindings = r.bindings[:0]
		r.bindMu.Unlock()

		var errs []error
		if lerr := r.loader.Close(ctx); lerr != nil {
			errs = append(errs, fmt.Errorf("close native loader: %w", lerr))
		}
		if r.store != nil {
			if serr := r.store.Close(); serr != nil {
				errs = append(errs, fmt.Errorf("close module cache: %w", serr))
			}
		}
		err = errors.Join(errs...)
	})
	return err
}
