package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"extranef/internal/fsutil"
	"extranef/internal/nef"
)

const (
	// LatestFileName is overwritten on every backup.
	LatestFileName = "extranef-data.json"

	versionPrefix = "extranef-data-"
	versionSuffix = ".json"
)

// Settings supplies the user-controlled backup settings. They are read on
// every run so changes apply immediately.
type Settings interface {
	BackupSettings() (dir string, autoBackup bool)
}

// Engine writes redundant copies of datastore snapshots into the backup
// directory: a fixed-name latest copy and a new timestamped copy per run.
// It implements nef.Backuper and never returns errors; every run produces an
// Outcome instead.
type Engine struct {
	settings    Settings
	maxVersions int
	logger      nef.Logger
	clock       nef.Clock

	mu sync.Mutex
}

// NewEngine creates an Engine. maxVersions > 0 keeps only that many
// timestamped copies; 0 keeps all of them.
func NewEngine(settings Settings, maxVersions int, logger nef.Logger, clock nef.Clock) *Engine {
	if logger == nil {
		logger = nef.NewNopLogger()
	}
	if clock == nil {
		clock = nef.RealClock{}
	}
	return &Engine{
		settings:    settings,
		maxVersions: maxVersions,
		logger:      logger,
		clock:       clock,
	}
}

// AfterPersist backs up snapshot if auto-backup is enabled and the backup
// directory is configured and exists.
func (e *Engine) AfterPersist(ctx context.Context, snapshot []byte) nef.Outcome {
	dir, auto := e.settings.BackupSettings()
	switch {
	case dir == "":
		return e.outcome(dir, nef.StatusNotConfigured, "no backup directory", nil)
	case !auto:
		return e.outcome(dir, nef.StatusSkipped, "auto-backup disabled", nil)
	case !fsutil.DirExists(dir):
		return e.outcome(dir, nef.StatusSkipped, "backup directory missing", nil)
	}
	return e.run(dir, snapshot)
}

// RunNow backs up snapshot whenever a backup directory is configured,
// creating the directory if needed.
func (e *Engine) RunNow(ctx context.Context, snapshot []byte) nef.Outcome {
	dir, _ := e.settings.BackupSettings()
	if dir == "" {
		return e.outcome(dir, nef.StatusNotConfigured, "no backup directory", nef.ErrNotConfigured)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return e.outcome(dir, nef.StatusError, "", fmt.Errorf("creating backup directory: %w", err))
	}
	return e.run(dir, snapshot)
}

func (e *Engine) run(dir string, snapshot []byte) nef.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fsutil.WriteFileAtomic(filepath.Join(dir, LatestFileName), snapshot, 0600); err != nil {
		e.logger.Warn("backup failed", "dir", dir, "error", err)
		return e.outcome(dir, nef.StatusError, "", fmt.Errorf("writing latest backup: %w", err))
	}

	versioned, err := e.writeVersion(dir, snapshot)
	if err != nil {
		e.logger.Warn("backup failed", "dir", dir, "error", err)
		return e.outcome(dir, nef.StatusError, "", err)
	}

	if e.maxVersions > 0 {
		if err := e.prune(dir); err != nil {
			e.logger.Warn("pruning old backups failed", "dir", dir, "error", err)
		}
	}

	e.logger.Debug("backup written", "file", versioned)
	return e.outcome(dir, nef.StatusSuccess, versioned, nil)
}

// writeVersion creates extranef-data-<ts>.json, appending -1, -2, ... when a
// copy with the same timestamp already exists.
func (e *Engine) writeVersion(dir string, snapshot []byte) (string, error) {
	stamp := nef.FileTimestamp(e.clock.Now())
	for n := 0; ; n++ {
		name := versionPrefix + stamp + versionSuffix
		if n > 0 {
			name = fmt.Sprintf("%s%s-%d%s", versionPrefix, stamp, n, versionSuffix)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return "", fmt.Errorf("creating versioned backup: %w", err)
		}
		if _, err := f.Write(snapshot); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("writing versioned backup: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("closing versioned backup: %w", err)
		}
		return path, nil
	}
}

type versionFile struct {
	name  string
	stamp string
	seq   int
}

// Versions returns the timestamped backups in dir, oldest first.
func Versions(dir string) ([]string, error) {
	files, err := listVersions(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.name
	}
	return out, nil
}

func listVersions(dir string) ([]versionFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	stampLen := len(nef.FileTimestamp(nef.RealClock{}.Now()))
	var files []versionFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, versionPrefix) || !strings.HasSuffix(name, versionSuffix) {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(name, versionPrefix), versionSuffix)
		if len(rest) < stampLen {
			continue
		}
		vf := versionFile{name: name, stamp: rest[:stampLen]}
		if tail := rest[stampLen:]; tail != "" {
			seq, err := strconv.Atoi(strings.TrimPrefix(tail, "-"))
			if err != nil || !strings.HasPrefix(tail, "-") {
				continue
			}
			vf.seq = seq
		}
		files = append(files, vf)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].stamp != files[j].stamp {
			return files[i].stamp < files[j].stamp
		}
		return files[i].seq < files[j].seq
	})
	return files, nil
}

func (e *Engine) prune(dir string) error {
	files, err := listVersions(dir)
	if err != nil {
		return err
	}
	if len(files) <= e.maxVersions {
		return nil
	}
	var errs []error
	for _, f := range files[:len(files)-e.maxVersions] {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) outcome(dir, status, detail string, err error) nef.Outcome {
	return nef.Outcome{
		Operation: "backup",
		Target:    dir,
		Status:    status,
		Detail:    detail,
		Err:       err,
		At:        e.clock.Now(),
	}
}

var _ nef.Backuper = (*Engine)(nil)
