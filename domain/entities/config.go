package entities

import (
	"time"
)

// RuntimeConfig holds every setting of the script host.
// It is loaded from YAML or TOML and validated before use.
type RuntimeConfig struct {
	// ScriptsDir is the root for module sources and native libraries.
	ScriptsDir string `json:"scripts_dir" yaml:"scripts_dir" toml:"scripts_dir" validate:"required" jsonschema:"description=Root directory of script sources and native libraries"`

	// ScriptExt is appended to module names to find their source file.
	ScriptExt string `json:"script_ext" yaml:"script_ext" toml:"script_ext" validate:"required,startswith=." jsonschema:"default=.js"`

	// Modules lists the modules loaded at startup and by ReloadScripts.
	Modules []string `json:"modules,omitempty" yaml:"modules,omitempty" toml:"modules,omitempty" validate:"dive,required"`

	// Defines are preprocessor symbols set for every module.
	Defines []string `json:"defines,omitempty" yaml:"defines,omitempty" toml:"defines,omitempty" validate:"dive,required"`

	Cache     CacheConfig     `json:"cache" yaml:"cache" toml:"cache"`
	Execution ExecutionConfig `json:"execution" yaml:"execution" toml:"execution"`
	Timeouts  TimeoutConfig   `json:"timeouts" yaml:"timeouts" toml:"timeouts"`
	GC        GCConfig        `json:"gc" yaml:"gc" toml:"gc"`
	Policy    PolicyConfig    `json:"policy" yaml:"policy" toml:"policy"`
	Native    NativeConfig    `json:"native" yaml:"native" toml:"native"`
	Log       LogConfig       `json:"log" yaml:"log" toml:"log"`
}

// CacheConfig configures the persisted module cache.
type CacheConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// Backend selects the store: "file" writes one file per module, "badger" keeps a key/value database.
	Backend string `json:"backend" yaml:"backend" toml:"backend" validate:"oneof=file badger" jsonschema:"enum=file,enum=badger"`

	Dir string `json:"dir" yaml:"dir" toml:"dir" validate:"required_if=Enabled true"`
}

// ExecutionConfig configures the dispatcher.
type ExecutionConfig struct {
	// ContextStackSize is the depth of each thread's context pool.
	ContextStackSize int `json:"context_stack_size" yaml:"context_stack_size" toml:"context_stack_size" validate:"min=1,max=256"`

	// Concurrent lets threads run scripts in parallel. When false, the
	// outermost call on any thread holds an exclusive execution lock.
	Concurrent bool `json:"concurrent" yaml:"concurrent" toml:"concurrent"`
}

// TimeoutConfig configures the watchdog.
type TimeoutConfig struct {
	// Suspend is the wall-clock budget of an outermost call. Zero disables suspension.
	Suspend time.Duration `json:"suspend" yaml:"suspend" toml:"suspend" validate:"gte=0"`

	// Warn logs calls running longer than this without suspending them. Zero disables it.
	Warn time.Duration `json:"warn" yaml:"warn" toml:"warn" validate:"gte=0"`

	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval" validate:"gt=0"`
}

// GCConfig configures the garbage-collection scheduler.
type GCConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// Budget is the longest acceptable full collection.
	Budget time.Duration `json:"budget" yaml:"budget" toml:"budget" validate:"gt=0"`

	StepInterval    time.Duration `json:"step_interval" yaml:"step_interval" toml:"step_interval" validate:"gt=0"`
	EvaluationCycle time.Duration `json:"evaluation_cycle" yaml:"evaluation_cycle" toml:"evaluation_cycle" validate:"gt=0"`
	MaxOverhead     time.Duration `json:"max_overhead" yaml:"max_overhead" toml:"max_overhead" validate:"gte=0"`

	MinCollectible uint64 `json:"min_collectible" yaml:"min_collectible" toml:"min_collectible" validate:"gt=0"`
	MaxCollectible uint64 `json:"max_collectible" yaml:"max_collectible" toml:"max_collectible" validate:"gtfield=MinCollectible"`
}

// PolicyConfig configures load-time checks.
type PolicyConfig struct {
	// DisallowedGlobalTypes are glob patterns of types that must not be held at module scope.
	DisallowedGlobalTypes []string `json:"disallowed_global_types,omitempty" yaml:"disallowed_global_types,omitempty" toml:"disallowed_global_types,omitempty" validate:"dive,required"`
}

// NativeConfig configures native libraries.
type NativeConfig struct {
	// CompileOnly is passed to every library init entry point.
	CompileOnly bool `json:"compile_only" yaml:"compile_only" toml:"compile_only"`

	// CacheDir enables the on-disk native compilation cache.
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty" toml:"cache_dir,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" toml:"format" validate:"oneof=text json"`
}

// Default values of RuntimeConfig.
const (
	DefaultContextStackSize = 10
	DefaultPollInterval     = 250 * time.Millisecond
)

// DefaultRuntimeConfig returns the configuration used when no file is given.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		ScriptsDir: "scripts",
		ScriptExt:  ".js",
		Cache: CacheConfig{
			Enabled: true,
			Backend: "file",
			Dir:     "cache",
		},
		Execution: ExecutionConfig{
			ContextStackSize: DefaultContextStackSize,
		},
		Timeouts: TimeoutConfig{
			Suspend:      10 * time.Second,
			Warn:         2 * time.Second,
			PollInterval: DefaultPollInterval,
		},
		GC: GCConfig{
			Enabled:         true,
			Budget:          5 * time.Millisecond,
			StepInterval:    100 * time.Millisecond,
			EvaluationCycle: 10 * time.Minute,
			MaxOverhead:     2 * time.Millisecond,
			MinCollectible:  1000,
			MaxCollectible:  1_000_000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// RuntimeOption is a functional option for RuntimeConfig.
type RuntimeOption func(*RuntimeConfig)

// WithScriptsDir sets the scripts root.
func WithScriptsDir(dir string) RuntimeOption {
	return func(c *RuntimeConfig) {
		c.ScriptsDir = dir
	}
}

// WithModules sets the modules loaded by ReloadScripts.
func WithModules(names ...string) RuntimeOption {
	return func(c *RuntimeConfig) {
		c.Modules = append([]string(nil), names...)
	}
}

// WithCache configures the module cache. An empty dir disables it.
func WithCache(backend, dir string) RuntimeOption {
	return func(c *RuntimeConfig) {
		c.Cache.Enabled = dir != ""
		c.Cache.Backend = backend
		c.Cache.Dir = dir
	}
}

// WithContextStackSize sets the per-thread context pool depth.
func WithContextStackSize(n int) RuntimeOption {
	return func(c *RuntimeConfig) {
		if n > 0 {
			c.Execution.ContextStackSize = n
		}
	}
}

// WithConcurrentExecution toggles parallel script execution.
func WithConcurrentExecution(enabled bool) RuntimeOption {
	return func(c *RuntimeConfig) {
		c.Execution.Concurrent = enabled
	}
}

// WithRunTimeout sets the suspend and warn thresholds.
func WithRunTimeout(suspend, warn time.Duration) RuntimeOption {
	return func(c *RuntimeConfig) {
		if suspend >= 0 {
			c.Timeouts.Suspend = suspend
		}
		if warn >= 0 {
			c.Timeouts.Warn = warn
		}
	}
}

// WithPollInterval sets the watchdog poll interval.
func WithPollInterval(d time.Duration) RuntimeOption {
	return func(c *RuntimeConfig) {
		if d > 0 {
			c.Timeouts.PollInterval = d
		}
	}
}

// WithDisallowedGlobalTypes sets the disallowed global type patterns.
func WithDisallowedGlobalTypes(patterns ...string) RuntimeOption {
	return func(c *RuntimeConfig) {
		c.Policy.DisallowedGlobalTypes = append([]string(nil), patterns...)
	}
}

// WithDefines sets the preprocessor symbols.
func WithDefines(symbols ...string) RuntimeOption {
	return func(c *RuntimeConfig) {
		c.Defines = append([]string(nil), symbols...)
	}
}

// WithGC toggles the GC scheduler.
func WithGC(enabled bool) RuntimeOption {
	return func(c *RuntimeConfig) {
		c.GC.Enabled = enabled
	}
}

// WithCompileOnly marks the process as a compile-only tool.
func WithCompileOnly(compileOnly bool) RuntimeOption {
	return func(c *RuntimeConfig) {
		c.Native.CompileOnly = compileOnly
	}
}

// NewRuntimeConfig creates a RuntimeConfig from defaults and options.
func NewRuntimeConfig(opts ...RuntimeOption) RuntimeConfig {
	cfg := DefaultRuntimeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
