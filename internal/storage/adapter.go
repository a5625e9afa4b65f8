package storage

import (
	"context"
	"sync"

	"extranef/internal/nef"
)

// Adapter is the single access point for table reads and writes on the UI
// side. It keeps an in-process cache in front of the local TableStore and,
// when the backend is desktop-backed, forwards every write to the canonical
// datastore in the background.
//
// Writes land in the cache and the local store before Persist returns, so a
// restart immediately after a save never loses data even if the forward is
// still in flight.
type Adapter struct {
	local    *TableStore
	backend  TableBackend
	observer nef.Observer
	clock    nef.Clock

	mu       sync.RWMutex
	cache    map[string][]nef.Record
	versions map[string]uint64

	// forwardMu serializes writes to the backend so that the newest
	// version of a table is always the last one stored.
	forwardMu sync.Mutex
	pending   sync.WaitGroup

	hydrateOnce sync.Once
	readyOnce   sync.Once
	ready       chan struct{}
	hydrated    bool
}

// NewAdapter creates an Adapter. Call Hydrate once at startup.
func NewAdapter(local *TableStore, backend TableBackend, observer nef.Observer, clock nef.Clock) *Adapter {
	if backend == nil {
		backend = LocalOnlyBackend{}
	}
	if observer == nil {
		observer = nef.NopObserver{}
	}
	if clock == nil {
		clock = nef.RealClock{}
	}
	return &Adapter{
		local:    local,
		backend:  backend,
		observer: observer,
		clock:    clock,
		cache:    make(map[string][]nef.Record),
		versions: make(map[string]uint64),
		ready:    make(chan struct{}),
	}
}

// Backend returns the backend selected at construction.
func (a *Adapter) Backend() TableBackend {
	return a.backend
}

// Desktop reports whether a desktop datastore backs the adapter. That
// datastore seeds its own reference tables.
func (a *Adapter) Desktop() bool {
	return a.backend.Desktop()
}

// Has reports whether name was ever written, in this process or in the
// local store. An emptied table still counts.
func (a *Adapter) Has(name string) bool {
	a.mu.RLock()
	_, ok := a.cache[name]
	a.mu.RUnlock()
	return ok || a.local.Has(name)
}

// GetTable returns a copy of the cached rows of name, falling back to the
// local store. It never blocks on the backend.
func (a *Adapter) GetTable(name string) []nef.Record {
	a.mu.RLock()
	rows, ok := a.cache[name]
	a.mu.RUnlock()
	if ok {
		return nef.CloneRows(rows)
	}
	return a.local.GetTable(name)
}

// Persist stores rows as the new content of name. The cache and local store
// are updated synchronously; the forward to a desktop backend runs in the
// background and its Outcome goes to the Observer. A failed forward never
// rolls back the local write.
func (a *Adapter) Persist(ctx context.Context, name string, rows []nef.Record) {
	if rows == nil {
		rows = []nef.Record{}
	}
	rows = nef.CloneRows(rows)

	a.mu.Lock()
	a.cache[name] = rows
	a.versions[name]++
	version := a.versions[name]
	a.mu.Unlock()

	a.local.SaveTableSync(name, rows)

	if !a.backend.Desktop() {
		return
	}

	fwdCtx := context.WithoutCancel(ctx)
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		a.forward(fwdCtx, name, rows, version)
	}()
}

func (a *Adapter) forward(ctx context.Context, name string, rows []nef.Record, version uint64) {
	a.forwardMu.Lock()
	defer a.forwardMu.Unlock()

	if a.version(name) != version {
		a.observe("forward", name, nef.StatusSkipped, "superseded by a newer write", nil)
		return
	}
	if err := a.backend.Store(ctx, name, rows); err != nil {
		a.observe("forward", name, nef.StatusError, "", err)
		return
	}
	a.observe("forward", name, nef.StatusSuccess, "", nil)
}

func (a *Adapter) version(name string) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.versions[name]
}

// Hydrate loads every known table from a ready desktop backend into the
// cache, promoting local rows into desktop tables that are empty. Tables are
// hydrated concurrently, each in a single pass without retries. Hydrate runs
// at most once per Adapter; the Ready channel is closed when it finishes,
// whether or not a desktop backend was available.
func (a *Adapter) Hydrate(ctx context.Context) {
	a.hydrateOnce.Do(func() {
		defer a.markReady()

		if !a.backend.Desktop() {
			return
		}
		ready, err := a.backend.Ready(ctx)
		if err != nil {
			a.observe("hydrate", "", nef.StatusError, "readiness probe failed", err)
			return
		}
		if !ready {
			a.observe("hydrate", "", nef.StatusSkipped, "desktop datastore not ready", nil)
			return
		}

		// Versions at the start of hydration; a table written after this
		// point keeps the newer local write.
		a.mu.RLock()
		start := make(map[string]uint64, len(nef.KnownTables))
		for _, name := range nef.KnownTables {
			start[name] = a.versions[name]
		}
		a.mu.RUnlock()

		var wg sync.WaitGroup
		for _, name := range nef.KnownTables {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				a.hydrateTable(ctx, name, start[name])
			}(name)
		}
		wg.Wait()

		a.mu.Lock()
		a.hydrated = true
		a.mu.Unlock()
	})
}

func (a *Adapter) hydrateTable(ctx context.Context, name string, startVersion uint64) {
	remote, err := a.backend.Fetch(ctx, name)
	if err != nil {
		a.observe("hydrate", name, nef.StatusError, "", err)
		return
	}

	if len(remote) > 0 {
		if a.adopt(name, remote, startVersion) {
			a.observe("hydrate", name, nef.StatusSuccess, "", nil)
		} else {
			a.observe("hydrate", name, nef.StatusSkipped, "written during hydration", nil)
		}
		return
	}

	local := a.local.GetTable(name)
	if len(local) == 0 {
		a.adopt(name, remote, startVersion)
		a.observe("hydrate", name, nef.StatusSuccess, "empty", nil)
		return
	}

	// Promotion: desktop empty, local non-empty. Holding forwardMu keeps a
	// concurrent Persist from being overwritten by these older rows.
	a.forwardMu.Lock()
	defer a.forwardMu.Unlock()

	if a.version(name) != startVersion {
		a.observe("promote", name, nef.StatusSkipped, "written during hydration", nil)
		return
	}
	if err := a.backend.Store(ctx, name, local); err != nil {
		a.observe("promote", name, nef.StatusError, "", err)
		return
	}
	a.adopt(name, local, startVersion)
	a.observe("promote", name, nef.StatusSuccess, "", nil)
}

// adopt caches rows for name unless the table was written after startVersion.
func (a *Adapter) adopt(name string, rows []nef.Record, startVersion uint64) bool {
	if rows == nil {
		rows = []nef.Record{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.versions[name] != startVersion {
		return false
	}
	a.cache[name] = nef.CloneRows(rows)
	return true
}

func (a *Adapter) markReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

// Ready is closed once hydration has finished.
func (a *Adapter) Ready() <-chan struct{} {
	return a.ready
}

// Hydrated reports whether the cache holds authoritative desktop data.
func (a *Adapter) Hydrated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.hydrated
}

// Flush waits for every in-flight forward to finish.
func (a *Adapter) Flush() {
	a.pending.Wait()
}

// Close flushes pending forwards. The Adapter must not be used afterwards.
func (a *Adapter) Close() error {
	a.Flush()
	return nil
}

func (a *Adapter) observe(op, target, status, detail string, err error) {
	a.observer.Observe(nef.Outcome{
		Operation: op,
		Target:    target,
		Status:    status,
		Detail:    detail,
		Err:       err,
		At:        a.clock.Now(),
	})
}
