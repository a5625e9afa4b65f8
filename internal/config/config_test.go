package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/home/user/.local/share/nef",
		DataDir: "/home/user/.local/share/nef/data",
		LogDir:  "/home/user/.local/share/nef/log",
		Bridge:  BridgeConfig{Address: "127.0.0.1:9000"},
		KVStore: KVStoreConfig{Type: "memory", QuotaBytes: 5 << 20},
		Journal: JournalConfig{Type: "sqlite", DataDir: "/var/lib/nef"},
		Backup:  BackupConfig{MaxVersions: 30},
		Cloud: CloudConfig{
			Type:     "s3",
			S3Bucket: "hr-backups",
			S3Prefix: "extranef",
			S3Region: "eu-west-1",
		},
		Encryption: EncryptionConfig{ScryptWorkFactor: 15},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.DataDir != original.DataDir {
		t.Errorf("DataDir = %q, want %q", got.DataDir, original.DataDir)
	}
	if got.Bridge.Address != "127.0.0.1:9000" {
		t.Errorf("Bridge.Address = %q, want %q", got.Bridge.Address, "127.0.0.1:9000")
	}
	if got.KVStore.Type != "memory" {
		t.Errorf("KVStore.Type = %q, want %q", got.KVStore.Type, "memory")
	}
	if got.KVStore.QuotaBytes != 5<<20 {
		t.Errorf("KVStore.QuotaBytes = %d, want %d", got.KVStore.QuotaBytes, 5<<20)
	}
	if got.Journal.DataDir != "/var/lib/nef" {
		t.Errorf("Journal.DataDir = %q, want %q", got.Journal.DataDir, "/var/lib/nef")
	}
	if got.Backup.MaxVersions != 30 {
		t.Errorf("Backup.MaxVersions = %d, want 30", got.Backup.MaxVersions)
	}
	if got.Cloud.Type != "s3" || got.Cloud.S3Bucket != "hr-backups" {
		t.Errorf("Cloud = %+v, want s3 bucket hr-backups", got.Cloud)
	}
	if got.Encryption.ScryptWorkFactor != 15 {
		t.Errorf("Encryption.ScryptWorkFactor = %d, want 15", got.Encryption.ScryptWorkFactor)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/nef")

	if cfg.BaseDir != "/data/nef" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/nef")
	}
	if cfg.LogDir != "/data/nef/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/nef/log")
	}
	if cfg.Bridge.Address != DefaultBridgeAddress {
		t.Errorf("Bridge.Address = %q, want %q", cfg.Bridge.Address, DefaultBridgeAddress)
	}
	if cfg.KVStore.Path != "/data/nef/local/localstorage.db" {
		t.Errorf("KVStore.Path = %q, want %q", cfg.KVStore.Path, "/data/nef/local/localstorage.db")
	}
	if cfg.DatastorePath() != "/data/nef/data/extranef-data.json" {
		t.Errorf("DatastorePath() = %q", cfg.DatastorePath())
	}
	if cfg.UserConfigPath() != "/data/nef/data/extranef-config.json" {
		t.Errorf("UserConfigPath() = %q", cfg.UserConfigPath())
	}
	if cfg.TokenPath() != "/data/nef/data/google-oauth-tokens.json" {
		t.Errorf("TokenPath() = %q", cfg.TokenPath())
	}
	if cfg.Cloud.OAuthRedirectAddr != DefaultOAuthRedirectAddr {
		t.Errorf("Cloud.OAuthRedirectAddr = %q, want %q", cfg.Cloud.OAuthRedirectAddr, DefaultOAuthRedirectAddr)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nef.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nef.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nef.toml")
		cfg := NewConfig(dir)
		cfg.Journal = JournalConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.BaseDir != dir {
			t.Errorf("BaseDir = %q, want %q", got.BaseDir, dir)
		}
		if got.Journal.Type != "memory" {
			t.Errorf("Journal.Type = %q, want %q", got.Journal.Type, "memory")
		}
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nef.toml")
		if err := os.WriteFile(path, []byte("base_dir = \"/x\"\n[kvstroe]\ntype = \"memory\"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadFromFile(path); err == nil {
			t.Fatal("ReadFromFile() expected error for unknown section")
		}
	})

	t.Run("fills default addresses", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nef.toml")
		if err := os.WriteFile(path, []byte("base_dir = \"/x\"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Bridge.Address != DefaultBridgeAddress || got.Cloud.OAuthRedirectAddr != DefaultOAuthRedirectAddr {
			t.Errorf("addresses = %q, %q", got.Bridge.Address, got.Cloud.OAuthRedirectAddr)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/nef.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
