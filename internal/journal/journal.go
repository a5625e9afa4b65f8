// Package journal records the outcome of every best-effort side effect so
// the user can see which forwards, backups and uploads failed.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"extranef/internal/journal/migrations"
	"extranef/internal/nef"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultLimit caps List when the caller asks for no limit.
const DefaultLimit = 100

// Journal is an Observer whose history can be read back.
type Journal interface {
	nef.Observer
	// List returns the most recent outcomes, newest first.
	List(ctx context.Context, limit int) ([]nef.Outcome, error)
	Close() error
}

// SQLiteJournal stores outcomes in a migrated SQLite database.
type SQLiteJournal struct {
	db     *sql.DB
	logger nef.Logger
}

var _ Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens the journal at path, applying pending migrations.
// path can be a file path or ":memory:".
func NewSQLiteJournal(path string, logger nef.Logger) (*SQLiteJournal, error) {
	if logger == nil {
		logger = nef.NewNopLogger()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrations.CheckStatus(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteJournal{db: db, logger: logger}, nil
}

// Observe appends o. Write failures are logged, never returned.
func (j *SQLiteJournal) Observe(o nef.Outcome) {
	at := o.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.Exec(
		"INSERT INTO outcomes (operation, target, status, detail, error, at) VALUES (?, ?, ?, ?, ?, ?)",
		o.Operation, o.Target, o.Status, o.Detail, o.ErrorMessage(), at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		j.logger.Error("recording outcome", "operation", o.Operation, "error", err)
	}
}

func (j *SQLiteJournal) List(ctx context.Context, limit int) ([]nef.Outcome, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx,
		"SELECT operation, target, status, detail, error, at FROM outcomes ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing outcomes: %w", err)
	}
	defer rows.Close()

	out := []nef.Outcome{}
	for rows.Next() {
		var o nef.Outcome
		var errText, at string
		if err := rows.Scan(&o.Operation, &o.Target, &o.Status, &o.Detail, &errText, &at); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		if errText != "" {
			o.Err = errors.New(errText)
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			o.At = t
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcomes: %w", err)
	}
	return out, nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// NopJournal drops outcomes and lists nothing.
type NopJournal struct{}

var _ Journal = NopJournal{}

func (NopJournal) Observe(nef.Outcome) {}

func (NopJournal) List(context.Context, int) ([]nef.Outcome, error) {
	return []nef.Outcome{}, nil
}

func (NopJournal) Close() error { return nil }
