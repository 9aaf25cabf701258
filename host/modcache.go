package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"slices"
	"sort"
	"time"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/errors"
	"github.com/reglet-dev/scripthost/domain/ports"
	"github.com/reglet-dev/scripthost/infrastructure/preprocessor"
	"github.com/reglet-dev/scripthost/wireformat"
)

// ErrModuleNotLoaded is returned by UnloadModule for unknown modules.
var ErrModuleNotLoaded = stdErrors.New("module is not loaded")

// moduleEntry is an installed module.
type moduleEntry struct {
	module ports.ScriptModule
	info   entities.ModuleInfo
	// source is kept for modules loaded from an inline source.
	source []byte
}

type loadConfig struct {
	source  []byte
	noCache bool
}

// LoadOption configures a single LoadScript call.
type LoadOption func(*loadConfig)

// WithSource supplies the module source instead of reading
// <ScriptsDir>/<name><ScriptExt>.
func WithSource(source []byte) LoadOption {
	return func(c *loadConfig) {
		c.source = source
	}
}

// WithoutCache neither reads nor writes the bytecode store.
func WithoutCache() LoadOption {
	return func(c *loadConfig) {
		c.noCache = true
	}
}

// LoadScript loads, compiles and installs module name. A fresh cache entry
// is installed without preprocessing after its pragmas are replayed.
// Otherwise the source is preprocessed, compiled and persisted.
//
// An installed module of the same name is replaced only once the new one
// compiled and passed the global type policy, so a failed reload keeps the
// old module.
func (r *Runtime) LoadScript(ctx context.Context, name string, opts ...LoadOption) error {
	if r.closed.Load() {
		return ErrClosed
	}
	var cfg loadConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	useCache := r.store != nil && !cfg.noCache
	path := name + r.config.ScriptExt

	r.gcMu.Lock()
	defer r.gcMu.Unlock()

	var (
		module    ports.ScriptModule
		record    *entities.ModuleRecord
		fromCache bool
	)
	if useCache && cfg.source == nil {
		record = r.cachedRecord(ctx, name, path)
		if record != nil {
			module = r.installCached(ctx, record)
			fromCache = module != nil
		}
	}

	if module == nil {
		res, err := r.preprocessor.Preprocess(path, cfg.source, r.handlePragma)
		if err != nil {
			var perr *preprocessor.Error
			reason := errors.LoadPreprocess
			if stdErrors.Is(err, fs.ErrNotExist) && !stdErrors.As(err, &perr) {
				reason = errors.LoadMissingSource
			}
			return r.loadFailed(ctx, &errors.LoadError{Module: name, Reason: reason, Err: err})
		}
		module, err = r.engine.Compile(name, []byte(res.Source))
		if err != nil {
			return r.loadFailed(ctx, &errors.LoadError{Module: name, Reason: errors.LoadCompile, Err: err})
		}
		record = &entities.ModuleRecord{
			Name:         name,
			Unit:         []byte(res.Source),
			Dependencies: res.Dependencies,
			Pragmas:      res.Pragmas,
			Version:      r.cacheVersion,
		}
	}

	if err := r.policy.Check(name, module.Globals()); err != nil {
		r.engine.Discard(module)
		return r.loadFailed(ctx, &errors.LoadError{Module: name, Reason: errors.LoadPolicy, Err: err})
	}

	r.install(ctx, name, module, cfg.source, fromCache)

	if useCache && !fromCache {
		r.persist(ctx, record)
	}
	return nil
}

func (r *Runtime) loadFailed(ctx context.Context, err *errors.LoadError) error {
	r.logger.ErrorContext(ctx, "module load failed", "module", err.Module, "reason", err.Reason, "error", err.Err)
	return err
}

// cachedRecord returns the persisted record of name when it is fresh: not
// older than its source and dependencies, and stamped with the runtime's
// unit version. A missing source next to a valid entry is accepted.
func (r *Runtime) cachedRecord(ctx context.Context, name, path string) *entities.ModuleRecord {
	data, storedAt, err := r.store.Load(name)
	if err != nil {
		if !stdErrors.Is(err, fs.ErrNotExist) {
			r.staleCache(ctx, name, err)
		}
		return nil
	}
	version, err := wireformat.PeekVersion(data)
	if err != nil {
		r.staleCache(ctx, name, err)
		return nil
	}
	if version != r.cacheVersion {
		r.staleCache(ctx, name, fmt.Errorf("version %#x, expected %#x", version, r.cacheVersion))
		return nil
	}
	record, err := wireformat.DecodeModule(name, data)
	if err != nil {
		r.staleCache(ctx, name, err)
		return nil
	}

	sourceMissing := false
	if newer, missing := r.newerThan(path, storedAt); newer {
		r.logger.DebugContext(ctx, "module source changed since cached", "module", name, "file", path)
		return nil
	} else if missing {
		sourceMissing = true
	}
	for _, dep := range record.Dependencies {
		newer, missing := r.newerThan(dep, storedAt)
		if newer || missing && !sourceMissing {
			r.logger.DebugContext(ctx, "module dependency changed since cached", "module", name, "file", dep)
			return nil
		}
	}
	return record
}

// unitVersion mixes the predefined preprocessor symbols into the engine
// version. Units preprocessed under a different symbol set never match.
func unitVersion(engine uint32, defines []string) uint32 {
	if len(defines) == 0 {
		return engine
	}
	symbols := slices.Clone(defines)
	slices.Sort(symbols)
	symbols = slices.Compact(symbols)

	h := fnv.New32a()
	for _, sym := range symbols {
		_, _ = h.Write([]byte(sym))
		_, _ = h.Write([]byte{0})
	}
	return engine ^ h.Sum32()
}

func (r *Runtime) newerThan(path string, t time.Time) (newer, missing bool) {
	info, err := fs.Stat(r.sourceFS, path)
	if err != nil {
		return false, true
	}
	return info.ModTime().After(t), false
}

func (r *Runtime) staleCache(ctx context.Context, name string, err error) {
	r.logger.WarnContext(ctx, "module cache entry unusable, recompiling",
		"module", name,
		"error", &errors.LoadError{Module: name, Reason: errors.LoadStaleCache, Err: err})
}

// installCached replays the recorded pragmas and compiles the stored unit.
// A nil result falls back to a full load.
func (r *Runtime) installCached(ctx context.Context, record *entities.ModuleRecord) ports.ScriptModule {
	for _, p := range record.Pragmas {
		if err := r.handlePragma(p.Tag, p.Text); err != nil {
			r.staleCache(ctx, record.Name, err)
			return nil
		}
	}
	module, err := r.engine.Compile(record.Name, record.Unit)
	if err != nil {
		r.staleCache(ctx, record.Name, err)
		return nil
	}
	return module
}

func (r *Runtime) install(ctx context.Context, name string, module ports.ScriptModule, source []byte, fromCache bool) {
	r.modMu.Lock()
	r.generation++
	old := r.modules[name]
	r.modules[name] = &moduleEntry{
		module: module,
		source: source,
		info: entities.ModuleInfo{
			LoadedAt:   r.now(),
			Name:       name,
			Functions:  module.Functions(),
			Generation: r.generation,
			FromCache:  fromCache,
		},
	}
	r.modMu.Unlock()

	if old != nil {
		r.logger.WarnContext(ctx, "module replaced, discarding previous version", "module", name)
		r.engine.Discard(old.module)
	}
	r.logger.InfoContext(ctx, "module loaded",
		"module", name,
		"functions", len(module.Functions()),
		"from_cache", fromCache)
}

func (r *Runtime) persist(ctx context.Context, record *entities.ModuleRecord) {
	data, err := wireformat.EncodeModule(record)
	if err == nil {
		err = r.store.Save(record.Name, data)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "failed to persist compiled module",
			"module", record.Name,
			"error", &errors.LoadError{Module: record.Name, Reason: errors.LoadPersist, Err: err})
	}
}

// ReloadScripts reloads every configured module and every installed module,
// then rebinds. It returns the joined load errors and the rebind error.
func (r *Runtime) ReloadScripts(ctx context.Context) error {
	seen := make(map[string]bool)
	var names []string
	for _, name := range r.config.Modules {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, name := range r.Modules() {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	var errs []error
	for _, name := range names {
		var opts []LoadOption
		r.modMu.RLock()
		if entry, ok := r.modules[name]; ok && entry.source != nil {
			opts = append(opts, WithSource(entry.source))
		}
		r.modMu.RUnlock()
		if err := r.LoadScript(ctx, name, opts...); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.RebindAll(); err != nil {
		errs = append(errs, err)
	}
	return stdErrors.Join(errs...)
}

// UnloadModule discards module name. Handles bound into it are zeroed.
func (r *Runtime) UnloadModule(name string) error {
	r.gcMu.Lock()
	defer r.gcMu.Unlock()

	r.modMu.Lock()
	entry, ok := r.modules[name]
	delete(r.modules, name)
	r.modMu.Unlock()
	if !ok {
		return fmt.Errorf("unload %s: %w", name, ErrModuleNotLoaded)
	}

	r.engine.Discard(entry.module)
	r.zeroModuleBindings(name)
	r.logger.Info("module unloaded", "module", name)
	return nil
}

// Modules returns the names of the installed modules, sorted.
func (r *Runtime) Modules() []string {
	r.modMu.RLock()
	defer r.modMu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Module describes an installed module.
func (r *Runtime) Module(name string) (entities.ModuleInfo, bool) {
	r.modMu.RLock()
	defer r.modMu.RUnlock()
	entry, ok := r.modules[name]
	if !ok {
		return entities.ModuleInfo{}, false
	}
	return entry.info, true
}
