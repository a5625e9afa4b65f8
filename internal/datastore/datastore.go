package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"extranef/internal/fsutil"
	"extranef/internal/nef"
)

// Store owns the canonical datastore document: every table plus metadata,
// held in memory and rewritten to a single JSON file on every mutation.
// It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	path     string
	doc      *nef.Dump
	ready    bool
	backuper nef.Backuper
	observer nef.Observer
	logger   nef.Logger
	clock    nef.Clock
}

// Open loads the document at path. A missing file yields a freshly seeded
// document that is persisted immediately. A file that cannot be read or
// decoded is moved aside to <path>.corrupt-<ts> and replaced the same way.
// backuper may be nil.
func Open(path string, backuper nef.Backuper, observer nef.Observer, logger nef.Logger, clock nef.Clock) (*Store, error) {
	if observer == nil {
		observer = nef.NopObserver{}
	}
	if logger == nil {
		logger = nef.NewNopLogger()
	}
	if clock == nil {
		clock = nef.RealClock{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating datastore directory: %w", err)
	}

	s := &Store{
		path:     path,
		backuper: backuper,
		observer: observer,
		logger:   logger,
		clock:    clock,
	}

	doc, err := readDocument(path)
	switch {
	case err == nil:
		s.doc = doc
		s.ready = true
		s.logger.Info("datastore loaded", "path", path)
		return s, nil
	case errors.Is(err, os.ErrNotExist):
		s.logger.Info("datastore not found, creating seeded document", "path", path)
	default:
		s.logger.Error("failed to load datastore, starting from defaults", "path", path, "error", err)
		aside := fmt.Sprintf("%s.corrupt-%s", path, nef.FileTimestamp(clock.Now()))
		if rerr := os.Rename(path, aside); rerr != nil {
			s.logger.Error("failed to move corrupt datastore aside", "path", path, "error", rerr)
		} else {
			s.logger.Warn("corrupt datastore moved aside", "path", aside)
		}
	}

	s.doc = nef.SeededDump()
	s.ready = true
	if err := s.persistLocked(context.Background()); err != nil {
		s.logger.Error("failed to persist seeded datastore", "path", path, "error", err)
	}
	return s, nil
}

// readDocument decodes the file at path and makes sure every known table is
// present as an array.
func readDocument(path string) (*nef.Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := nef.NewDump()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if doc.Meta.Version == "" {
		doc.Meta.Version = nef.DocumentVersion
	}
	for _, name := range nef.KnownTables {
		if _, ok := doc.Tables[name]; !ok {
			delete(doc.Extra, name)
			doc.Tables[name] = []nef.Record{}
		}
	}
	return doc, nil
}

// Path returns the location of the document on disk.
func (s *Store) Path() string {
	return s.path
}

// IsReady reports whether the document has been loaded.
func (s *Store) IsReady(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready, nil
}

// GetTable returns a copy of the rows of name.
func (s *Store) GetTable(ctx context.Context, name string) ([]nef.Record, error) {
	if !nef.IsKnownTable(name) {
		return nil, fmt.Errorf("%w: %s", nef.ErrUnknownTable, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, nef.ErrNotReady
	}
	return nef.CloneRows(s.doc.Tables[name]), nil
}

// SaveTable overwrites name with rows and persists the document. The
// in-memory change is kept even if writing the file fails.
func (s *Store) SaveTable(ctx context.Context, name string, rows []nef.Record) error {
	if !nef.IsKnownTable(name) {
		return fmt.Errorf("%w: %s", nef.ErrUnknownTable, name)
	}
	if rows == nil {
		rows = []nef.Record{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nef.ErrNotReady
	}
	s.doc.Tables[name] = nef.CloneRows(rows)
	return s.persistLocked(ctx)
}

// ExportAll returns a deep copy of the document.
func (s *Store) ExportAll(ctx context.Context) (*nef.Dump, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, nef.ErrNotReady
	}
	out := nef.NewDump()
	out.Meta = s.doc.Meta
	for name, rows := range s.doc.Tables {
		out.Tables[name] = nef.CloneRows(rows)
	}
	for k, v := range s.doc.Extra {
		out.Extra[k] = append(json.RawMessage(nil), v...)
	}
	return out, nil
}

// ImportAll replaces every known table present in dump and persists. Keys
// that are not known tables, metadata included, are left untouched.
func (s *Store) ImportAll(ctx context.Context, dump *nef.Dump) error {
	if dump == nil {
		return nef.ErrInvalidDump
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nef.ErrNotReady
	}

	imported := 0
	for name, rows := range dump.Tables {
		if !nef.IsKnownTable(name) || rows == nil {
			continue
		}
		s.doc.Tables[name] = nef.CloneRows(rows)
		imported++
	}
	s.logger.Info("dump imported", "tables", imported)
	return s.persistLocked(ctx)
}

// Reset clears every table, restores the seeded reference rows and persists.
// Keys that are not known tables are kept.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seeded := nef.SeededDump()
	for name, rows := range seeded.Tables {
		s.doc.Tables[name] = rows
	}
	s.ready = true
	s.logger.Info("datastore reset to defaults")
	return s.persistLocked(ctx)
}

// BackupNow writes backup copies of the current document regardless of the
// auto-backup flag.
func (s *Store) BackupNow(ctx context.Context) nef.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backuper == nil {
		return nef.Outcome{Operation: "backup", Status: nef.StatusNotConfigured, Err: nef.ErrNotConfigured, At: s.clock.Now()}
	}
	data, err := s.encodeLocked()
	if err != nil {
		return nef.Outcome{Operation: "backup", Status: nef.StatusError, Err: err, At: s.clock.Now()}
	}
	o := s.backuper.RunNow(ctx, data)
	s.observer.Observe(o)
	return o
}

// AutoBackup runs the auto-backup over the current document, as if it had
// just been persisted.
func (s *Store) AutoBackup(ctx context.Context) nef.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backuper == nil {
		return nef.Outcome{Operation: "backup", Status: nef.StatusNotConfigured, At: s.clock.Now()}
	}
	data, err := s.encodeLocked()
	if err != nil {
		return nef.Outcome{Operation: "backup", Status: nef.StatusError, Err: err, At: s.clock.Now()}
	}
	o := s.backuper.AfterPersist(ctx, data)
	s.observer.Observe(o)
	return o
}

func (s *Store) encodeLocked() ([]byte, error) {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding datastore: %w", err)
	}
	return data, nil
}

// persistLocked stamps updatedAt, rewrites the file through a temp file and
// rename, then hands the written bytes to the backuper. Backup failures are
// observed, never returned.
func (s *Store) persistLocked(ctx context.Context) error {
	s.doc.Meta.UpdatedAt = s.clock.Now().UTC()
	if s.doc.Meta.Version == "" {
		s.doc.Meta.Version = nef.DocumentVersion
	}

	data, err := s.encodeLocked()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0600); err != nil {
		s.logger.Error("failed to persist datastore", "path", s.path, "error", err)
		return fmt.Errorf("persisting datastore: %w", err)
	}

	if s.backuper != nil {
		s.observer.Observe(s.backuper.AfterPersist(ctx, data))
	}
	return nil
}

var _ nef.Bridge = (*Store)(nil)
