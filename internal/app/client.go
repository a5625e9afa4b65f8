package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"extranef/internal/bridge"
	"extranef/internal/config"
	"extranef/internal/hr"
	"extranef/internal/kvstore"
	"extranef/internal/nef"
	"extranef/internal/storage"
)

// ClientApp is the UI side: a local key-value store behind the storage
// adapter, forwarding to the server over the bridge when it is reachable.
type ClientApp struct {
	logger  nef.Logger
	logFile *os.File
	kv      nef.KVStore
	client  *bridge.Client
	adapter *storage.Adapter
	hr      *hr.Service
}

// ClientOptions tunes NewClientApp.
type ClientOptions struct {
	Verbose bool
	// ProbeTimeout bounds the one-time bridge reachability probe.
	ProbeTimeout time.Duration
}

// NewClientApp creates a ClientApp, selects its backend and hydrates the
// adapter. The caller must call Close so pending forwards finish.
func NewClientApp(ctx context.Context, cfg *config.Config, opts ClientOptions) (*ClientApp, error) {
	clock := nef.RealClock{}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	session := "cli-" + time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, session, level, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}
	observer := nef.LogObserver{Logger: logger}

	kv, err := kvstore.NewKVStoreFromConfig(cfg.KVStore)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	client := bridge.NewClient(cfg.Bridge.Address, nil)

	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	backend := storage.SelectBackend(probeCtx, client, logger)
	cancel()

	local := storage.NewTableStore(kv, observer, clock)
	adapter := storage.NewAdapter(local, backend, observer, clock)
	adapter.Hydrate(ctx)

	svc := hr.NewService(adapter, clock, nef.UUIDGenerator{})
	svc.EnsureSeeded(ctx)

	return &ClientApp{
		logger:  logger,
		logFile: logFile,
		kv:      kv,
		client:  client,
		adapter: adapter,
		hr:      svc,
	}, nil
}

// HR returns the HR service.
func (a *ClientApp) HR() *hr.Service {
	return a.hr
}

// Adapter returns the storage adapter.
func (a *ClientApp) Adapter() *storage.Adapter {
	return a.adapter
}

// Desktop reports whether a server backs this client.
func (a *ClientApp) Desktop() bool {
	return a.adapter.Backend().Desktop()
}

// Bridge returns the bridge client for server-only operations. It fails
// with nef.ErrNotConfigured when no server was reachable at startup.
func (a *ClientApp) Bridge() (*bridge.Client, error) {
	if !a.Desktop() {
		return nil, fmt.Errorf("nef server unreachable (start it with 'nef serve'): %w", nef.ErrNotConfigured)
	}
	return a.client, nil
}

// Close waits for pending forwards, then closes the local store and the log.
func (a *ClientApp) Close() error {
	var firstErr error
	if err := a.adapter.Close(); err != nil {
		firstErr = fmt.Errorf("closing adapter: %w", err)
	}
	if err := a.kv.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing local store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
