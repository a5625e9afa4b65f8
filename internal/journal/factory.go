package journal

import (
	"fmt"
	"path/filepath"

	"extranef/internal/config"
	"extranef/internal/nef"
)

// FileName is the journal database inside the configured data dir.
const FileName = "journal.db"

// NewJournalFromConfig creates a Journal based on the journal config type.
func NewJournalFromConfig(cfg config.JournalConfig, logger nef.Logger) (Journal, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite journal")
		}
		return NewSQLiteJournal(filepath.Join(cfg.DataDir, FileName), logger)
	case "memory":
		return NewSQLiteJournal(":memory:", logger)
	case "none", "":
		return NopJournal{}, nil
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}
