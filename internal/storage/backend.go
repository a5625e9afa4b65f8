package storage

import (
	"context"
	"fmt"

	"extranef/internal/nef"
)

// TableBackend is the durable side of the Adapter, chosen once at startup.
type TableBackend interface {
	// Desktop reports whether a privileged process backs this backend.
	Desktop() bool

	// Ready reports whether the canonical datastore has been loaded.
	Ready(ctx context.Context) (bool, error)

	// Fetch returns the canonical rows of a table.
	Fetch(ctx context.Context, name string) ([]nef.Record, error)

	// Store overwrites a table in the canonical datastore.
	Store(ctx context.Context, name string, rows []nef.Record) error
}

// LocalOnlyBackend is used when no privileged process is reachable. Every
// operation short-circuits with nef.ErrNotConfigured.
type LocalOnlyBackend struct{}

func (LocalOnlyBackend) Desktop() bool { return false }

func (LocalOnlyBackend) Ready(context.Context) (bool, error) { return false, nil }

func (LocalOnlyBackend) Fetch(context.Context, string) ([]nef.Record, error) {
	return nil, nef.ErrNotConfigured
}

func (LocalOnlyBackend) Store(context.Context, string, []nef.Record) error {
	return nef.ErrNotConfigured
}

// DesktopBackedBackend forwards to the privileged process through a Bridge.
type DesktopBackedBackend struct {
	bridge nef.Bridge
}

// NewDesktopBackedBackend wraps bridge.
func NewDesktopBackedBackend(bridge nef.Bridge) *DesktopBackedBackend {
	return &DesktopBackedBackend{bridge: bridge}
}

func (b *DesktopBackedBackend) Desktop() bool { return true }

func (b *DesktopBackedBackend) Ready(ctx context.Context) (bool, error) {
	return b.bridge.IsReady(ctx)
}

func (b *DesktopBackedBackend) Fetch(ctx context.Context, name string) ([]nef.Record, error) {
	rows, err := b.bridge.GetTable(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", name, err)
	}
	return rows, nil
}

func (b *DesktopBackedBackend) Store(ctx context.Context, name string, rows []nef.Record) error {
	if err := b.bridge.SaveTable(ctx, name, rows); err != nil {
		return fmt.Errorf("storing %s: %w", name, err)
	}
	return nil
}

// SelectBackend probes bridge once and returns the backend to use for the
// lifetime of the process. A nil or unreachable bridge selects the
// LocalOnlyBackend.
func SelectBackend(ctx context.Context, bridge nef.Bridge, logger nef.Logger) TableBackend {
	if bridge == nil {
		return LocalOnlyBackend{}
	}
	if _, err := bridge.IsReady(ctx); err != nil {
		if logger != nil {
			logger.Info("desktop datastore unreachable, using local storage only", "error", err)
		}
		return LocalOnlyBackend{}
	}
	return NewDesktopBackedBackend(bridge)
}
