package gcsched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/internal/testutil"
)

// syntheticCollector frees every unreachable object and advances the fake
// clock by a fixed overhead plus a constant cost per freed object.
type syntheticCollector struct {
	clock     *testutil.Clock
	err       error
	reachable uint64
	live      uint64
	destroyed uint64
	fixedFree uint64
	perObject time.Duration
	overhead  time.Duration
}

func newSyntheticCollector(clock *testutil.Clock) *syntheticCollector {
	return &syntheticCollector{
		clock:     clock,
		reachable: 1000,
		live:      1000,
		perObject: time.Microsecond,
		overhead:  500 * time.Microsecond,
	}
}

func (c *syntheticCollector) Stats() entities.GCStats {
	return entities.GCStats{Live: c.live, Detected: c.destroyed, Destroyed: c.destroyed}
}

func (c *syntheticCollector) Collect(_ context.Context, mode entities.GCMode) error {
	if c.err != nil {
		return c.err
	}
	if mode == entities.GCDetectStep {
		c.clock.Advance(10 * time.Microsecond)
		return nil
	}
	freed := c.live - c.reachable
	if c.fixedFree > 0 && freed > c.fixedFree {
		freed = c.fixedFree
	}
	c.live -= freed
	c.destroyed += freed
	c.clock.Advance(c.overhead + time.Duration(freed)*c.perObject)
	return nil
}

func newTestScheduler(col *syntheticCollector, opts ...Option) *Scheduler {
	base := []Option{
		WithClock(col.clock.Now),
		WithBudget(5 * time.Millisecond),
		WithStepInterval(100 * time.Millisecond),
		WithEvaluationCycle(0),
		WithMaxOverhead(2 * time.Millisecond),
		WithCollectibleRange(1000, 1_000_000),
	}
	return New(col, append(base, opts...)...)
}

// run allocates perTick objects before each tick.
func run(t *testing.T, s *Scheduler, col *syntheticCollector, ticks int, perTick uint64) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		col.live += perTick
		require.NoError(t, s.Tick(context.Background()))
		col.clock.Advance(100 * time.Millisecond)
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "bootstrap", PhaseBootstrap.String())
	assert.Equal(t, "calibrate2", PhaseCalibrate2.String())
	assert.Equal(t, "steady", PhaseSteady.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
}

func TestScheduler_Calibrates(t *testing.T) {
	col := newSyntheticCollector(testutil.NewClock())
	s := newTestScheduler(col)

	phases := []Phase{s.Phase()}
	for i := 0; i < 40 && s.Phase() != PhaseSteady; i++ {
		run(t, s, col, 1, 300)
		if p := s.Phase(); p != phases[len(phases)-1] {
			phases = append(phases, p)
		}
	}
	assert.Equal(t, []Phase{
		PhaseBootstrap, PhaseCalibrateInit, PhaseCalibrate0, PhaseCalibrate1, PhaseCalibrate2, PhaseFinalize, PhaseSteady,
	}, phases)

	stats := s.Stats()
	assert.Equal(t, time.Microsecond, stats.CostPerObject)
	assert.Equal(t, 500*time.Microsecond, stats.Overhead)
	assert.Equal(t, uint64(4500), stats.Target)
	assert.Equal(t, uint64(5), stats.Collections)
}

func TestScheduler_SteadyStateConverges(t *testing.T) {
	col := newSyntheticCollector(testutil.NewClock())
	s := newTestScheduler(col)

	run(t, s, col, 2000, 300)

	stats := s.Stats()
	require.Equal(t, PhaseSteady, stats.Phase)
	require.Greater(t, stats.SteadyCollections, uint64(100))
	within := float64(stats.SteadyCollections-stats.OverBudget) / float64(stats.SteadyCollections)
	assert.GreaterOrEqual(t, within, 0.95)
}

func TestScheduler_ClampsOverhead(t *testing.T) {
	col := newSyntheticCollector(testutil.NewClock())
	col.overhead = 3 * time.Millisecond
	s := newTestScheduler(col)

	run(t, s, col, 40, 300)

	stats := s.Stats()
	require.Equal(t, PhaseSteady, stats.Phase)
	assert.Equal(t, 2*time.Millisecond, stats.Overhead)
	assert.Equal(t, uint64(3000), stats.Target)
}

func TestScheduler_DegenerateSamplesRestart(t *testing.T) {
	col := newSyntheticCollector(testutil.NewClock())
	col.fixedFree = 500
	logger, logs := testutil.NewLogger()
	s := newTestScheduler(col, WithLogger(logger))

	run(t, s, col, 100, 300)

	assert.NotEqual(t, PhaseSteady, s.Phase())
	testutil.AssertLogged(t, logs, "gc calibration restarted", "identical counts")
}

func TestScheduler_Force(t *testing.T) {
	col := newSyntheticCollector(testutil.NewClock())
	s := newTestScheduler(col)
	run(t, s, col, 40, 300)
	require.Equal(t, PhaseSteady, s.Phase())
	before := s.Stats().Collections

	col.live += 700
	require.NoError(t, s.Force(context.Background()))

	assert.Equal(t, PhaseCalibrateInit, s.Phase())
	assert.Equal(t, before+1, s.Stats().Collections)
	assert.Equal(t, uint64(1000), col.live)
}

func TestScheduler_EvaluationCycleRecalibrates(t *testing.T) {
	col := newSyntheticCollector(testutil.NewClock())
	s := newTestScheduler(col, WithEvaluationCycle(time.Minute))
	run(t, s, col, 40, 300)
	require.Equal(t, PhaseSteady, s.Phase())

	col.clock.Advance(2 * time.Minute)
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, PhaseCalibrateInit, s.Phase())
}

func TestScheduler_CollectorError(t *testing.T) {
	col := newSyntheticCollector(testutil.NewClock())
	col.err = errors.New("vm closed")
	s := newTestScheduler(col)

	err := s.Tick(context.Background())
	assert.ErrorIs(t, err, col.err)
	assert.ErrorContains(t, err, "full collection")
	assert.Equal(t, PhaseBootstrap, s.Phase())

	assert.ErrorIs(t, s.Force(context.Background()), col.err)
}

func TestWithConfig(t *testing.T) {
	gc := entities.DefaultRuntimeConfig().GC
	gc.Budget = time.Second
	s := New(newSyntheticCollector(testutil.NewClock()), WithConfig(gc))
	assert.Equal(t, time.Second, s.budget)
	assert.Equal(t, gc.MinCollectible, s.typical)
}
