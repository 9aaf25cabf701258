// Package watchdog enforces wall-clock budgets on script calls.
//
// Each thread registers its outermost dispatch. A background loop polls the
// registry and asks threads that ran past the suspend threshold to suspend
// cooperatively; it never waits for them.
package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reglet-dev/scripthost/domain/entities"
)

// DefaultPollInterval is the default time between two registry passes.
const DefaultPollInterval = 250 * time.Millisecond

// Target is a thread whose executing contexts can be asked to suspend.
// SuspendExecuting must not block.
type Target interface {
	SuspendExecuting()
}

type config struct {
	logger  *slog.Logger
	now     func() time.Time
	poll    time.Duration
	suspend time.Duration
	warn    time.Duration
}

func defaultConfig() config {
	return config{
		logger: slog.Default(),
		now:    time.Now,
		poll:   DefaultPollInterval,
	}
}

// Option configures a Watchdog.
type Option func(*config)

// WithLogger sets the logger used for timeout reports.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPollInterval sets the time between two passes of Run.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithTimeouts sets the suspend and warn thresholds. Zero disables either.
func WithTimeouts(suspend, warn time.Duration) Option {
	return func(c *config) {
		c.suspend = suspend
		c.warn = warn
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

type record struct {
	target Target
	entities.ActiveContextRecord
}

// Watchdog tracks the active context record of every executing thread.
type Watchdog struct {
	records map[uint64]*record
	config
	mu sync.Mutex
}

// New creates a Watchdog. It does nothing until Run or Check is called.
func New(opts ...Option) *Watchdog {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Watchdog{config: cfg, records: make(map[uint64]*record)}
}

// Register starts tracking the outermost dispatch of the thread with pool id.
func (w *Watchdog) Register(id uint64, target Target) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records[id] = &record{
		target:              target,
		ActiveContextRecord: entities.ActiveContextRecord{PoolID: id, Started: w.now()},
	}
}

// Unregister stops tracking id. Unknown ids are ignored, since the record
// may already have been removed by a suspension.
func (w *Watchdog) Unregister(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.records, id)
}

// SetTimeouts updates the suspend and warn thresholds.
func (w *Watchdog) SetTimeouts(suspend, warn time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.suspend = suspend
	w.warn = warn
}

// Timeouts returns the current suspend and warn thresholds.
func (w *Watchdog) Timeouts() (suspend, warn time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.suspend, w.warn
}

// Active returns a snapshot of the tracked records.
func (w *Watchdog) Active() []entities.ActiveContextRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]entities.ActiveContextRecord, 0, len(w.records))
	for _, r := range w.records {
		out = append(out, r.ActiveContextRecord)
	}
	return out
}

// Check runs one pass over the registry and returns the number of threads
// asked to suspend.
func (w *Watchdog) Check() int {
	now := w.now()

	w.mu.Lock()
	var expired []*record
	for id, r := range w.records {
		elapsed := now.Sub(r.Started)
		switch {
		case w.suspend > 0 && elapsed > w.suspend:
			expired = append(expired, r)
			delete(w.records, id)
		case w.warn > 0 && elapsed > w.warn && !r.Warned:
			r.Warned = true
			w.logger.Warn("script running long", "pool", id, "elapsed", elapsed, "warn_after", w.warn)
		}
	}
	suspend := w.suspend
	w.mu.Unlock()

	for _, r := range expired {
		w.logger.Error("script timed out, suspending", "pool", r.PoolID, "elapsed", now.Sub(r.Started), "suspend_after", suspend)
		r.target.SuspendExecuting()
	}
	return len(expired)
}

// Run polls until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}
