package entities

// GCMode selects what a collector pass does.
type GCMode int

const (
	// GCFull runs a complete collect-and-destroy cycle.
	GCFull GCMode = iota
	// GCDetectStep runs one incremental detection step without destroying.
	GCDetectStep
)

func (m GCMode) String() string {
	if m == GCDetectStep {
		return "detect_step"
	}
	return "full"
}

// GCStats are live object counters reported by a collector.
type GCStats struct {
	// Live is the number of objects currently held by the VM.
	Live uint64
	// Detected is the running total of objects found to be garbage.
	Detected uint64
	// Destroyed is the running total of objects freed.
	Destroyed uint64
}
