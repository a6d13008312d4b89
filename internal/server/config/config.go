// Package config is the server binary's configuration: a TOML file with
// environment-variable overrides, following the same layered-resolver
// shape as the client's internal/client/settings (itself grounded on the
// teacher's internal/config/{config,defaults,env,load,validate}.go
// layering — defaults, then file, then environment, then flags).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the notesync-server process configuration.
type Config struct {
	ListenAddr string `toml:"listen_addr"`
	DBPath     string `toml:"db_path"`
	BlobRoot   string `toml:"blob_root"`
	APIKey     string `toml:"api_key"`
	LogLevel   string `toml:"log_level"`
}

// Defaults returns the built-in configuration used before any file or
// environment override is applied.
func Defaults() Config {
	return Config{
		ListenAddr: ":8443",
		DBPath:     "./notesync-server.db",
		BlobRoot:   "./notesync-attachments",
		LogLevel:   "info",
	}
}

// Load resolves configuration in the order defaults -> file -> env,
// matching the teacher's internal/config/load.go layering. path may be
// empty, in which case only defaults and environment apply.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// A missing config file is not an error: flags/env can fully
			// configure the server.
		case err != nil:
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		default:
			if _, err := toml.Decode(string(data), &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	return cfg, nil
}

// applyEnv overrides cfg fields from NOTESYNC_* environment variables,
// matching the teacher's internal/config/env.go prefix convention.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NOTESYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("NOTESYNC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("NOTESYNC_BLOB_ROOT"); v != "" {
		cfg.BlobRoot = v
	}
	if v := os.Getenv("NOTESYNC_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("NOTESYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks that the resolved configuration is usable.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("config: api_key is required (set in config file or NOTESYNC_API_KEY)")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.BlobRoot == "" {
		return fmt.Errorf("config: blob_root is required")
	}
	return nil
}
