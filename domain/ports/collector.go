package ports

import (
	"context"

	"github.com/reglet-dev/scripthost/domain/entities"
)

// Collector is the VM garbage collector as seen by the scheduler.
type Collector interface {
	Stats() entities.GCStats
	Collect(ctx context.Context, mode entities.GCMode) error
}
