package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"extranef/internal/fsutil"
)

// UserConfig is the JSON document holding settings the user changes from
// within the application:
//
//	{"backupDir": path|null, "autoBackup": bool, "google": {...}}
type UserConfig struct {
	BackupDir  *string       `json:"backupDir"`
	AutoBackup bool          `json:"autoBackup"`
	Google     *GoogleConfig `json:"google,omitempty"`
}

// GoogleConfig holds the OAuth client credentials and the Drive root folder.
type GoogleConfig struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	FolderID     string `json:"folderId"`
	Scope        string `json:"scope"`
}

// DefaultGoogleScope is the Drive scope requested when none is configured.
const DefaultGoogleScope = "drive.file"

// BackupPatch is a partial update of the backup settings. Nil fields are
// left unchanged; an empty BackupDir clears the directory.
type BackupPatch struct {
	BackupDir  *string `json:"backupDir,omitempty"`
	AutoBackup *bool   `json:"autoBackup,omitempty"`
}

// DefaultUserConfig returns the settings used when no file exists yet.
func DefaultUserConfig() UserConfig {
	return UserConfig{AutoBackup: true}
}

// BackupDirPath returns the configured backup directory, or "".
func (u UserConfig) BackupDirPath() string {
	if u.BackupDir == nil {
		return ""
	}
	return *u.BackupDir
}

// clone deep-copies the pointer fields so callers cannot mutate shared state.
func (u UserConfig) clone() UserConfig {
	out := u
	if u.BackupDir != nil {
		dir := *u.BackupDir
		out.BackupDir = &dir
	}
	if u.Google != nil {
		g := *u.Google
		out.Google = &g
	}
	return out
}

// UserConfigStore owns the user config file. It is safe for concurrent use.
type UserConfigStore struct {
	mu   sync.RWMutex
	path string
	cfg  UserConfig
}

// LoadUserConfig reads the user config at path, layering the file over the
// defaults. A missing file yields the defaults. A corrupt file also yields
// the defaults, together with the decode error so the caller can log it;
// the returned store is usable in both cases.
func LoadUserConfig(path string) (*UserConfigStore, error) {
	s := &UserConfigStore{path: path, cfg: DefaultUserConfig()}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("reading user config: %w", err)
	}

	cfg := DefaultUserConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return s, fmt.Errorf("decoding user config %s: %w", path, err)
	}
	s.cfg = cfg
	return s, nil
}

// NewUserConfigStore returns a store holding cfg that persists to path.
func NewUserConfigStore(path string, cfg UserConfig) *UserConfigStore {
	return &UserConfigStore{path: path, cfg: cfg.clone()}
}

// Get returns a copy of the current settings.
func (s *UserConfigStore) Get() UserConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// BackupSettings returns the backup directory and the auto-backup flag.
func (s *UserConfigStore) BackupSettings() (dir string, autoBackup bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.BackupDirPath(), s.cfg.AutoBackup
}

// Google returns the Google settings, or nil when unconfigured.
func (s *UserConfigStore) Google() *GoogleConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg.Google == nil {
		return nil
	}
	g := *s.cfg.Google
	return &g
}

// ApplyBackupPatch merges p into the settings and saves the file. The
// in-memory settings are updated even when saving fails.
func (s *UserConfigStore) ApplyBackupPatch(p BackupPatch) (UserConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.BackupDir != nil {
		if *p.BackupDir == "" {
			s.cfg.BackupDir = nil
		} else {
			dir := *p.BackupDir
			s.cfg.BackupDir = &dir
		}
	}
	if p.AutoBackup != nil {
		s.cfg.AutoBackup = *p.AutoBackup
	}
	return s.cfg.clone(), s.saveLocked()
}

// SetGoogle replaces the Google settings and saves the file.
func (s *UserConfigStore) SetGoogle(g GoogleConfig) error {
	if g.Scope == "" {
		g.Scope = DefaultGoogleScope
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Google = &g
	return s.saveLocked()
}

func (s *UserConfigStore) saveLocked() error {
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding user config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating user config directory: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing user config: %w", err)
	}
	return nil
}
