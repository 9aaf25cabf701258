// Package gcsched schedules garbage collection of the script VM.
//
// The Scheduler profiles the collector while running: it times three full
// collections of growing size, fits a linear cost model to them and then
// collects whenever the pending garbage would take about as long as the
// configured budget to destroy.
package gcsched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

// Phase is the scheduler state.
type Phase int

const (
	PhaseBootstrap Phase = iota
	PhaseCalibrateInit
	PhaseCalibrate0
	PhaseCalibrate1
	PhaseCalibrate2
	PhaseFinalize
	PhaseSteady
)

var phaseNames = [...]string{
	"bootstrap", "calibrate_init", "calibrate0", "calibrate1", "calibrate2", "finalize", "steady",
}

func (p Phase) String() string {
	if int(p) >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// calibrationGrowth is the garbage multiple each calibration stage waits for.
var calibrationGrowth = [3]float64{1, 1.5, 2}

// Stats reports the scheduler state.
type Stats struct {
	Phase Phase
	// Target is the garbage count that triggers a steady-state collection.
	Target uint64
	// CostPerObject is the estimated collection time of one object.
	CostPerObject time.Duration
	// Overhead is the estimated fixed cost of a full collection.
	Overhead    time.Duration
	Baseline    uint64
	Collections uint64
	// SteadyCollections counts full collections triggered in PhaseSteady.
	SteadyCollections uint64
	// OverBudget counts steady-state collections that took longer than the budget.
	OverBudget uint64
}

type sample struct {
	collected uint64
	elapsed   time.Duration
}

// Scheduler is the GC state machine. All methods are safe for concurrent use.
type Scheduler struct {
	lastStep     time.Time
	calibratedAt time.Time
	collector    ports.Collector
	config
	samples  [3]sample
	phase    Phase
	baseline uint64
	typical  uint64
	target   uint64
	lastLive uint64
	slope    float64 // nanoseconds per object
	overhead time.Duration
	full     uint64
	steady   uint64
	over     uint64
	mu       sync.Mutex
}

// New creates a scheduler in PhaseBootstrap.
func New(collector ports.Collector, opts ...Option) *Scheduler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Scheduler{collector: collector, config: cfg, typical: cfg.minCollectible}
}

// Tick advances the state machine by one step.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseBootstrap, PhaseCalibrateInit:
		if _, err := s.collectLocked(ctx); err != nil {
			return err
		}
		s.baseline = s.collector.Stats().Live
		s.phase++
		return nil

	case PhaseCalibrate0, PhaseCalibrate1, PhaseCalibrate2:
		stage := int(s.phase - PhaseCalibrate0)
		threshold := uint64(float64(s.typical) * calibrationGrowth[stage])
		if s.garbageLocked() < threshold {
			return nil
		}
		smp, err := s.collectLocked(ctx)
		if err != nil {
			return err
		}
		s.samples[stage] = smp
		s.baseline = s.collector.Stats().Live
		s.phase++
		return nil

	case PhaseFinalize:
		s.finalizeLocked()
		return nil

	case PhaseSteady:
		return s.steadyLocked(ctx)

	default:
		return fmt.Errorf("gc scheduler in unknown %s", s.phase)
	}
}

// Force runs a full collection and restarts calibration.
func (s *Scheduler) Force(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.collectLocked(ctx); err != nil {
		return err
	}
	s.baseline = s.collector.Stats().Live
	s.phase = PhaseCalibrateInit
	s.logger.DebugContext(ctx, "gc forced, recalibrating", "live", s.baseline)
	return nil
}

// Stats returns a snapshot of the scheduler state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Phase:             s.phase,
		Target:            s.target,
		CostPerObject:     time.Duration(s.slope),
		Overhead:          s.overhead,
		Baseline:          s.baseline,
		Collections:       s.full,
		SteadyCollections: s.steady,
		OverBudget:        s.over,
	}
}

// Phase returns the current phase.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Scheduler) garbageLocked() uint64 {
	live := s.collector.Stats().Live
	if live <= s.baseline {
		return 0
	}
	return live - s.baseline
}

// collectLocked runs a timed full collection and reports how many objects it destroyed.
func (s *Scheduler) collectLocked(ctx context.Context) (sample, error) {
	before := s.collector.Stats().Destroyed
	start := s.now()
	if err := s.collector.Collect(ctx, entities.GCFull); err != nil {
		return sample{}, fmt.Errorf("full collection: %w", err)
	}
	elapsed := s.now().Sub(start)
	s.full++
	return sample{collected: s.collector.Stats().Destroyed - before, elapsed: elapsed}, nil
}

// finalizeLocked fits elapsed = overhead + slope*collected over the samples.
func (s *Scheduler) finalizeLocked() {
	for i := range s.samples {
		for j := i + 1; j < len(s.samples); j++ {
			if s.samples[i].collected == s.samples[j].collected {
				s.restartLocked("calibration stages collected identical counts")
				return
			}
		}
	}

	var meanX, meanY float64
	for _, smp := range s.samples {
		meanX += float64(smp.collected)
		meanY += float64(smp.elapsed)
	}
	n := float64(len(s.samples))
	meanX /= n
	meanY /= n

	var cov, variance float64
	for _, smp := range s.samples {
		dx := float64(smp.collected) - meanX
		cov += dx * (float64(smp.elapsed) - meanY)
		variance += dx * dx
	}
	slope := cov / variance
	if slope <= 0 {
		s.restartLocked("collection cost does not grow with object count")
		return
	}

	overhead := time.Duration(meanY - slope*meanX)
	if overhead < 0 {
		overhead = 0
	}
	if overhead > s.maxOverhead {
		overhead = s.maxOverhead
	}

	target := s.maxCollectible
	if s.budget > overhead {
		if t := float64(s.budget-overhead) / slope; t < float64(s.maxCollectible) {
			target = uint64(t)
		}
	} else {
		target = s.minCollectible
	}
	if target < s.minCollectible {
		target = s.minCollectible
	}

	s.slope = slope
	s.overhead = overhead
	s.target = target
	s.typical = target
	s.phase = PhaseSteady
	s.calibratedAt = s.now()
	s.lastStep = time.Time{}
	s.lastLive = s.collector.Stats().Live
	s.logger.Info("gc calibrated",
		"target", target, "cost_per_object", time.Duration(slope), "overhead", overhead, "budget", s.budget)
}

func (s *Scheduler) restartLocked(reason string) {
	s.logger.Warn("gc calibration restarted", "reason", reason,
		"samples", fmt.Sprintf("%d/%d/%d", s.samples[0].collected, s.samples[1].collected, s.samples[2].collected))
	s.samples = [3]sample{}
	s.phase = PhaseCalibrateInit
}

func (s *Scheduler) steadyLocked(ctx context.Context) error {
	now := s.now()
	if s.evaluationCycle > 0 && now.Sub(s.calibratedAt) >= s.evaluationCycle {
		s.phase = PhaseCalibrateInit
		return nil
	}
	if !s.lastStep.IsZero() && now.Sub(s.lastStep) < s.stepInterval {
		return nil
	}
	s.lastStep = now

	if err := s.collector.Collect(ctx, entities.GCDetectStep); err != nil {
		return fmt.Errorf("detect step: %w", err)
	}

	live := s.collector.Stats().Live
	var growth uint64
	if live > s.lastLive {
		growth = live - s.lastLive
	}
	s.lastLive = live

	if s.garbageLocked()+growth <= s.target {
		return nil
	}

	smp, err := s.collectLocked(ctx)
	if err != nil {
		return err
	}
	s.steady++
	if smp.elapsed > s.budget {
		s.over++
		s.logger.WarnContext(ctx, "gc over budget", "elapsed", smp.elapsed, "budget", s.budget, "collected", smp.collected)
	}
	s.baseline = s.collector.Stats().Live
	s.lastLive = s.baseline
	return nil
}
