package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"extranef/internal/config"
)

// Environment holds the variables that override default locations.
type Environment struct {
	ConfigPath string `env:"NEF_CONFIG_PATH"`
	Home       string `env:"NEF_HOME"`
	BridgeAddr string `env:"NEF_BRIDGE_ADDR"`
}

// LoadDotEnv loads path into the process environment when it exists.
// Variables already set are not overridden.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - NEF_CONFIG_PATH: config file location (default: ~/.config/nef.toml)
//   - NEF_HOME: base directory for nef data (default: ~/.local/share/nef)
//   - NEF_BRIDGE_ADDR: bridge address (default: 127.0.0.1:53456)
func GetDefaults() (map[string]string, error) {
	var e Environment
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil && (e.ConfigPath == "" || e.Home == "") {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	configPath := e.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(homeDir, ".config", "nef.toml")
	}
	baseDir := e.Home
	if baseDir == "" {
		baseDir = filepath.Join(homeDir, ".local", "share", "nef")
	}
	bridgeAddr := e.BridgeAddr
	if bridgeAddr == "" {
		bridgeAddr = config.DefaultBridgeAddress
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"bridge_addr": bridgeAddr,
	}, nil
}

// ApplyEnvironment overrides settings of cfg that have an environment
// variable set.
func ApplyEnvironment(cfg *config.Config) error {
	var e Environment
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	if e.BridgeAddr != "" {
		cfg.Bridge.Address = e.BridgeAddr
	}
	return nil
}
