package gcsched

import (
	"log/slog"
	"time"

	"github.com/reglet-dev/scripthost/domain/entities"
)

type config struct {
	logger          *slog.Logger
	now             func() time.Time
	budget          time.Duration
	stepInterval    time.Duration
	evaluationCycle time.Duration
	maxOverhead     time.Duration
	minCollectible  uint64
	maxCollectible  uint64
}

func defaultConfig() config {
	c := config{logger: slog.Default(), now: time.Now}
	applyGCConfig(&c, entities.DefaultRuntimeConfig().GC)
	return c
}

func applyGCConfig(c *config, gc entities.GCConfig) {
	c.budget = gc.Budget
	c.stepInterval = gc.StepInterval
	c.evaluationCycle = gc.EvaluationCycle
	c.maxOverhead = gc.MaxOverhead
	c.minCollectible = gc.MinCollectible
	c.maxCollectible = gc.MaxCollectible
}

// Option configures a Scheduler.
type Option func(*config)

// WithConfig applies every field of a GCConfig.
func WithConfig(gc entities.GCConfig) Option {
	return func(c *config) {
		applyGCConfig(c, gc)
	}
}

// WithBudget sets the longest acceptable full collection.
func WithBudget(d time.Duration) Option {
	return func(c *config) {
		c.budget = d
	}
}

// WithStepInterval sets the minimum time between two steady-state steps.
func WithStepInterval(d time.Duration) Option {
	return func(c *config) {
		c.stepInterval = d
	}
}

// WithEvaluationCycle sets how long a calibration stays valid. Zero keeps it forever.
func WithEvaluationCycle(d time.Duration) Option {
	return func(c *config) {
		c.evaluationCycle = d
	}
}

// WithMaxOverhead clamps the estimated per-collection overhead.
func WithMaxOverhead(d time.Duration) Option {
	return func(c *config) {
		c.maxOverhead = d
	}
}

// WithCollectibleRange clamps the steady-state target.
func WithCollectibleRange(lo, hi uint64) Option {
	return func(c *config) {
		c.minCollectible = lo
		c.maxCollectible = hi
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces the time source used to time collections.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}
