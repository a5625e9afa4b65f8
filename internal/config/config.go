package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"extranef/internal/fsutil"
)

// Config represents the process settings for nef. Runtime settings the user
// edits from the application (backup directory, Google credentials) live in
// the JSON user config instead; see UserConfig.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	DataDir    string           `toml:"data_dir"`
	LogDir     string           `toml:"log_dir"`
	Bridge     BridgeConfig     `toml:"bridge"`
	KVStore    KVStoreConfig    `toml:"kvstore"`
	Journal    JournalConfig    `toml:"journal"`
	Backup     BackupConfig     `toml:"backup"`
	Cloud      CloudConfig      `toml:"cloud"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// BridgeConfig holds the loopback address the privileged process listens on
// and the UI side dials.
type BridgeConfig struct {
	Address string `toml:"address"`
}

// KVStoreConfig represents configuration for the UI-side key-value store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type KVStoreConfig struct {
	Type       string `toml:"type"`                  // "sqlite" (default) or "memory"
	Path       string `toml:"path,omitempty"`        // only used for type=sqlite
	QuotaBytes int64  `toml:"quota_bytes,omitempty"` // only used for type=memory; 0 means unlimited
}

// JournalConfig represents configuration for the operation journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type JournalConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "none"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// BackupConfig holds auto-backup settings that are not user-editable at runtime.
type BackupConfig struct {
	MaxVersions int `toml:"max_versions"` // timestamped copies to keep; 0 keeps all
}

// CloudConfig represents configuration for the cloud object store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CloudConfig struct {
	Type string `toml:"type"` // "gdrive" (default), "s3", "filesystem", "memory" or "none"

	// Google Drive fields (only used when Type == "gdrive"); credentials
	// themselves are stored in the user config.
	OAuthRedirectAddr string `toml:"oauth_redirect_addr,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// EncryptionConfig tunes the passphrase sealing of exported dumps.
type EncryptionConfig struct {
	Type             string `toml:"type"`               // "age" (default) or "plain"
	ScryptWorkFactor int    `toml:"scrypt_work_factor"` // 0 uses the age default
}

// DefaultBridgeAddress is the loopback address of the privileged process.
const DefaultBridgeAddress = "127.0.0.1:53456"

// DefaultOAuthRedirectAddr is where the one-shot OAuth callback listener binds.
const DefaultOAuthRedirectAddr = "127.0.0.1:53457"

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	dataDir := filepath.Join(baseDir, "data")
	return &Config{
		BaseDir: baseDir,
		DataDir: dataDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Bridge:  BridgeConfig{Address: DefaultBridgeAddress},
		KVStore: KVStoreConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "local", "localstorage.db"),
		},
		Journal: JournalConfig{Type: "sqlite", DataDir: dataDir},
		Cloud:   CloudConfig{Type: "gdrive", OAuthRedirectAddr: DefaultOAuthRedirectAddr},
	}
}

// DatastorePath returns the location of the canonical datastore document.
func (c *Config) DatastorePath() string {
	return filepath.Join(c.DataDir, "extranef-data.json")
}

// UserConfigPath returns the location of the JSON user config.
func (c *Config) UserConfigPath() string {
	return filepath.Join(c.DataDir, "extranef-config.json")
}

// TokenPath returns the location of the persisted OAuth token.
func (c *Config) TokenPath() string {
	return filepath.Join(c.DataDir, "google-oauth-tokens.json")
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile loads the Config at path. Keys the decoder does not know
// are rejected so a misspelt section fails loudly. Empty addresses fall back
// to their defaults.
func ReadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}

	if cfg.Bridge.Address == "" {
		cfg.Bridge.Address = DefaultBridgeAddress
	}
	if cfg.Cloud.OAuthRedirectAddr == "" {
		cfg.Cloud.OAuthRedirectAddr = DefaultOAuthRedirectAddr
	}
	return &cfg, nil
}

// Init writes cfg to path, refusing to replace an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	var buf bytes.Buffer
	if err := (&Manager{}).Write(&buf, cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
