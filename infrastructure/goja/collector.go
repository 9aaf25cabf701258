package goja

import (
	"context"
	"runtime"
	"sync"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

var _ ports.Collector = (*Collector)(nil)

// Collector exposes the Go heap as the script collector. goja objects live
// on the Go heap, so heap object counts stand in for script objects.
type Collector struct {
	read      func(*runtime.MemStats)
	gc        func()
	detected  uint64
	destroyed uint64
	mu        sync.Mutex
}

// NewCollector creates a Collector over the process heap.
func NewCollector() *Collector {
	return &Collector{read: runtime.ReadMemStats, gc: runtime.GC}
}

func (c *Collector) Stats() entities.GCStats {
	var ms runtime.MemStats
	c.read(&ms)

	c.mu.Lock()
	defer c.mu.Unlock()
	return entities.GCStats{Live: ms.HeapObjects, Detected: c.detected, Destroyed: c.destroyed}
}

// Collect runs a blocking collection for GCFull. A detect step only samples
// the heap: the Go collector marks concurrently on its own.
func (c *Collector) Collect(ctx context.Context, mode entities.GCMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mode == entities.GCDetectStep {
		return nil
	}

	var before runtime.MemStats
	c.read(&before)

	c.gc()
	var after runtime.MemStats
	c.read(&after)

	c.mu.Lock()
	defer c.mu.Unlock()
	if before.HeapObjects > after.HeapObjects {
		freed := before.HeapObjects - after.HeapObjects
		c.detected += freed
		c.destroyed += freed
	}
	return nil
}
