package bytecodestore

import (
	"fmt"
	"log/slog"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

// New opens the store selected by the cache configuration.
func New(cfg entities.CacheConfig, logger *slog.Logger) (ports.BytecodeStore, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(WithDir(cfg.Dir)), nil
	case "badger":
		return NewBadgerStore(BadgerOptions{Dir: cfg.Dir, Logger: logger})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
