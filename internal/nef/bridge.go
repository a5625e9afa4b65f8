package nef

import "context"

// Bridge is the contract between the UI side and the privileged process that
// owns the datastore file. The datastore implements it directly; the bridge
// client implements it over the loopback transport.
type Bridge interface {
	// IsReady reports whether the on-disk datastore has been loaded.
	IsReady(ctx context.Context) (bool, error)

	// GetTable returns the rows of a table.
	// Returns ErrUnknownTable if name is not a known table.
	GetTable(ctx context.Context, name string) ([]Record, error)

	// SaveTable overwrites a table, persists the document and triggers the
	// auto-backup. Returns ErrUnknownTable if name is not a known table.
	SaveTable(ctx context.Context, name string, rows []Record) error

	// ExportAll returns a full snapshot of every table plus metadata.
	ExportAll(ctx context.Context) (*Dump, error)

	// ImportAll replaces the recognized, array-valued tables of dump and
	// leaves everything else untouched.
	ImportAll(ctx context.Context, dump *Dump) error
}

// KVStore is a persistent per-key string store: the UI-side analogue of
// browser local storage.
type KVStore interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) (string, bool, error)

	// Set stores value under key, overwriting unconditionally.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases resources held by the store.
	Close() error
}

// Backuper receives every successfully persisted datastore snapshot.
type Backuper interface {
	// AfterPersist writes redundant copies of snapshot if auto-backup is
	// enabled. It never returns an error; the Outcome says what happened.
	AfterPersist(ctx context.Context, snapshot []byte) Outcome

	// RunNow writes copies of snapshot regardless of the auto-backup flag,
	// as long as a backup directory is configured.
	RunNow(ctx context.Context, snapshot []byte) Outcome
}
