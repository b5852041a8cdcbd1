// Package config holds the immutable runtime configuration shared by
// the ingestion pipeline and the query server. A Config is built once
// at startup and passed into constructors; nothing in this package is
// process-global.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ANSES has not revised the 2020 dataset, so a year-long cache window
// avoids pointless re-downloads.
const defaultMaxAgeDays = 365

// Config is the runtime configuration.
type Config struct {
	// DBPath is the SQLite store location.
	DBPath string `yaml:"db_path"`
	// ArchiveURL is the versioned ANSES XML bundle.
	ArchiveURL string `yaml:"archive_url"`
	// MaxAgeDays is the staleness window for the cached store.
	MaxAgeDays int `yaml:"max_age_days"`
	// BatchSize is the composition insert batch size.
	BatchSize int `yaml:"batch_size"`

	ServerName    string `yaml:"server_name"`
	ServerVersion string `yaml:"server_version"`
}

// Default returns the stock configuration: the fixed ANSES 2020
// distribution loaded into ~/.ciqual/ciqual.db.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		DBPath:        filepath.Join(home, ".ciqual", "ciqual.db"),
		ArchiveURL:    "https://ciqual.anses.fr/cms/sites/default/files/inline-files/XML_2020_07_07.zip",
		MaxAgeDays:    defaultMaxAgeDays,
		BatchSize:     1000,
		ServerName:    "ANSES Ciqual",
		ServerVersion: "1.0.0",
	}
}

// Load overlays a YAML file onto the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = defaultMaxAgeDays
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return cfg, nil
}

// MaxAge returns the staleness window as a duration.
func (c Config) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// EnsureStoreDir creates the store's parent directory.
func (c Config) EnsureStoreDir() error {
	return os.MkdirAll(filepath.Dir(c.DBPath), 0o755)
}
