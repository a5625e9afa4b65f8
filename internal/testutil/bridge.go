package testutil

import (
	"context"
	"fmt"
	"sync"

	"extranef/internal/nef"
)

// FakeBridge is an in-memory nef.Bridge for tests. It can be made slow
// (SaveTable blocks until released), failing, unready or unreachable.
// Safe for concurrent use.
type FakeBridge struct {
	mu       sync.Mutex
	tables   map[string][]nef.Record
	extra    map[string][]byte
	ready    bool
	probeErr error
	getErr   error
	saveErr  error
	gate     chan struct{}
	saves    []string
}

// NewFakeBridge returns a ready bridge with every known table empty.
func NewFakeBridge() *FakeBridge {
	f := &FakeBridge{
		tables: make(map[string][]nef.Record),
		extra:  make(map[string][]byte),
		ready:  true,
	}
	for _, name := range nef.KnownTables {
		f.tables[name] = []nef.Record{}
	}
	return f
}

// SetTable replaces the content of a table.
func (f *FakeBridge) SetTable(name string, rows []nef.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = nef.CloneRows(rows)
}

// Table returns a copy of the content of a table.
func (f *FakeBridge) Table(name string) []nef.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nef.CloneRows(f.tables[name])
}

// SetReady controls the IsReady answer.
func (f *FakeBridge) SetReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

// SetUnreachable makes IsReady fail with err.
func (f *FakeBridge) SetUnreachable(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeErr = err
}

// FailGets makes GetTable fail with err.
func (f *FakeBridge) FailGets(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

// FailSaves makes SaveTable and ImportAll fail with err.
func (f *FakeBridge) FailSaves(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

// Block makes SaveTable wait until the returned release func is called.
func (f *FakeBridge) Block() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// Saves returns the table names passed to SaveTable, in call order.
func (f *FakeBridge) Saves() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.saves...)
}

func (f *FakeBridge) IsReady(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probeErr != nil {
		return false, f.probeErr
	}
	return f.ready, nil
}

func (f *FakeBridge) GetTable(ctx context.Context, name string) ([]nef.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if !nef.IsKnownTable(name) {
		return nil, fmt.Errorf("%w: %s", nef.ErrUnknownTable, name)
	}
	return nef.CloneRows(f.tables[name]), nil
}

func (f *FakeBridge) SaveTable(ctx context.Context, name string, rows []nef.Record) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, name)
	if f.saveErr != nil {
		return f.saveErr
	}
	if !nef.IsKnownTable(name) {
		return fmt.Errorf("%w: %s", nef.ErrUnknownTable, name)
	}
	f.tables[name] = nef.CloneRows(rows)
	return nil
}

func (f *FakeBridge) ExportAll(ctx context.Context) (*nef.Dump, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := nef.NewDump()
	d.Meta.Version = nef.DocumentVersion
	for name, rows := range f.tables {
		d.Tables[name] = nef.CloneRows(rows)
	}
	for k, v := range f.extra {
		d.Extra[k] = append([]byte(nil), v...)
	}
	return d, nil
}

func (f *FakeBridge) ImportAll(ctx context.Context, dump *nef.Dump) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if dump == nil {
		return nef.ErrInvalidDump
	}
	for name, rows := range dump.Tables {
		if nef.IsKnownTable(name) {
			f.tables[name] = nef.CloneRows(rows)
		}
	}
	return nil
}

var _ nef.Bridge = (*FakeBridge)(nil)
