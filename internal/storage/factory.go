package storage

import (
	"fmt"

	"github.com/hb-chen/skillgate/internal/config"
)

// NewLedger creates a ledger based on store type
func NewLedger(cfg config.Ledger) (Ledger, error) {
	switch cfg.StoreType {
	case "", "memory":
		return NewMemoryLedger(cfg.Capacity), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite ledger needs ledger.path")
		}
		return NewSQLiteLedger(cfg.Path, cfg.Capacity)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.StoreType)
	}
}
