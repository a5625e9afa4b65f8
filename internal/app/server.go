// Package app wires the nef components from configuration for the two
// process roles: the privileged server that owns the datastore, and the UI
// side client that reads and writes through the storage adapter.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"time"

	"extranef/internal/attachment"
	"extranef/internal/backup"
	"extranef/internal/bridge"
	"extranef/internal/cloud"
	"extranef/internal/cloudsync"
	"extranef/internal/config"
	"extranef/internal/datastore"
	"extranef/internal/gauth"
	"extranef/internal/journal"
	"extranef/internal/nef"
)

// ServerApp is the privileged process: it owns the canonical datastore, the
// backup directory and the cloud credentials, and serves them on the bridge.
type ServerApp struct {
	cfg       *config.Config
	logger    nef.Logger
	logFile   *os.File
	journal   journal.Journal
	datastore *datastore.Store
	server    *bridge.Server
}

// NewServerApp creates a fully wired ServerApp from the given config.
// The caller must call Close when done.
func NewServerApp(ctx context.Context, cfg *config.Config, verbose bool) (*ServerApp, error) {
	clock := nef.RealClock{}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	session := "serve-" + time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, session, level, true)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	settings, err := config.LoadUserConfig(cfg.UserConfigPath())
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("loading user config: %w", err)
	}

	jrnl, err := journal.NewJournalFromConfig(cfg.Journal, logger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	observer := nef.MultiObserver{nef.LogObserver{Logger: logger}, jrnl}

	engine := backup.NewEngine(settings, cfg.Backup.MaxVersions, logger, clock)
	store, err := datastore.Open(cfg.DatastorePath(), engine, observer, logger, clock)
	if err != nil {
		jrnl.Close()
		logFile.Close()
		return nil, fmt.Errorf("opening datastore: %w", err)
	}

	auth := gauth.NewManager(settings, cfg.TokenPath(), cfg.Cloud.OAuthRedirectAddr, logger)
	provider, err := cloud.NewProviderFromConfig(ctx, cfg.Cloud, settings, auth)
	if err != nil {
		jrnl.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating cloud provider: %w", err)
	}

	saver := attachment.NewSaver(settings, logger, clock)
	pipeline := cloudsync.NewPipeline(provider, store, saver, observer, logger, clock)

	server := bridge.NewServer(bridge.Services{
		Datastore: store,
		Settings:  settings,
		Saver:     saver,
		Uploader:  pipeline,
		Auth:      auth,
		History:   jrnl,
		OpenURL:   openBrowser,
	}, logger)

	return &ServerApp{
		cfg:       cfg,
		logger:    logger,
		logFile:   logFile,
		journal:   jrnl,
		datastore: store,
		server:    server,
	}, nil
}

// Serve runs the bridge until ctx is cancelled.
func (a *ServerApp) Serve(ctx context.Context) error {
	return a.server.ListenAndServe(ctx, a.cfg.Bridge.Address)
}

// Datastore returns the canonical datastore.
func (a *ServerApp) Datastore() *datastore.Store {
	return a.datastore
}

// Close releases the journal and the log file.
func (a *ServerApp) Close() error {
	var firstErr error
	if err := a.journal.Close(); err != nil {
		firstErr = fmt.Errorf("closing journal: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// openBrowser opens url with the platform's default handler.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
