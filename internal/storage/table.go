package storage

import (
	"encoding/json"
	"fmt"

	"extranef/internal/nef"
)

// TableStore persists whole tables as JSON strings in a KVStore, one key per
// table. Reads never fail and writes never return errors: a missing or
// corrupt value reads as an empty table, and a failed write is reported to
// the Observer only.
type TableStore struct {
	kv       nef.KVStore
	observer nef.Observer
	clock    nef.Clock
}

// NewTableStore creates a TableStore over kv.
func NewTableStore(kv nef.KVStore, observer nef.Observer, clock nef.Clock) *TableStore {
	if observer == nil {
		observer = nef.NopObserver{}
	}
	if clock == nil {
		clock = nef.RealClock{}
	}
	return &TableStore{kv: kv, observer: observer, clock: clock}
}

// GetTable returns the stored rows of name, or an empty slice.
func (s *TableStore) GetTable(name string) []nef.Record {
	raw, ok, err := s.kv.Get(name)
	if err != nil || !ok || raw == "" {
		return []nef.Record{}
	}
	rows, err := nef.DecodeRows([]byte(raw))
	if err != nil {
		return []nef.Record{}
	}
	return rows
}

// SaveTableSync overwrites name with rows.
func (s *TableStore) SaveTableSync(name string, rows []nef.Record) {
	if rows == nil {
		rows = []nef.Record{}
	}
	data, err := json.Marshal(rows)
	if err == nil {
		err = s.kv.Set(name, string(data))
	}
	if err != nil {
		s.observer.Observe(nef.Outcome{
			Operation: "local_save",
			Target:    name,
			Status:    nef.StatusError,
			Err:       fmt.Errorf("saving table locally: %w", err),
			At:        s.clock.Now(),
		})
	}
}

// Has reports whether name has ever been saved.
func (s *TableStore) Has(name string) bool {
	_, ok, err := s.kv.Get(name)
	return err == nil && ok
}
