package kvstore

import (
	"fmt"

	"extranef/internal/config"
	"extranef/internal/nef"
)

// NewKVStoreFromConfig creates a KVStore implementation based on the kvstore config type.
func NewKVStoreFromConfig(cfg config.KVStoreConfig) (nef.KVStore, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite kvstore")
		}
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(cfg.QuotaBytes), nil
	default:
		return nil, fmt.Errorf("unknown kvstore type: %s", cfg.Type)
	}
}
