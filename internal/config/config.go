// Package config loads and saves application configuration.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Database DatabaseConfig `toml:"database"`
	Capture  CaptureConfig  `toml:"capture"`
	Watch    WatchConfig    `toml:"watch"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type CaptureConfig struct {
	// Concurrency caps how many comment threads are fetched in parallel
	// during one capture.
	Concurrency       int  `toml:"concurrency"`
	ThreadTimeoutSecs int  `toml:"thread_timeout_secs"`
	PageTimeoutSecs   int  `toml:"page_timeout_secs"`
	Headless          bool `toml:"headless"`
}

type WatchConfig struct {
	// Cron is a standard 5-field cron expression for scheduled captures.
	Cron     string `toml:"cron"`
	Timezone string `toml:"timezone"`
	// MinIntervalHours skips a scheduled capture when the user already
	// has a run more recent than this.
	MinIntervalHours int      `toml:"min_interval_hours"`
	Users            []string `toml:"users"`
}

// ThreadTimeout returns the per-thread fetch timeout as a duration.
func (c CaptureConfig) ThreadTimeout() time.Duration {
	return time.Duration(c.ThreadTimeoutSecs) * time.Second
}

// PageTimeout returns the per-page-visit timeout as a duration.
func (c CaptureConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSecs) * time.Second
}

// MinInterval returns the recent-run guard window as a duration.
func (c WatchConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalHours) * time.Hour
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Database: DatabaseConfig{
			Path: "printwatch.db",
		},
		Capture: CaptureConfig{
			Concurrency:       6,
			ThreadTimeoutSecs: 60,
			PageTimeoutSecs:   60,
			Headless:          true,
		},
		Watch: WatchConfig{
			Cron:             "0 * * * *",
			Timezone:         "UTC",
			MinIntervalHours: 1,
			Users:            []string{},
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "printwatch"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from path, or from the default location when path
// is empty. A missing file at the default location yields defaults.
func Load(path string) (*Config, error) {
	usingDefault := path == ""
	if usingDefault {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if usingDefault && os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
