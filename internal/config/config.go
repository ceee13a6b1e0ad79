// Package config loads mtpzhost's TOML configuration file, applying
// .env overrides first and watching the file for live edits, the way
// the reference staccato server's internal/config package does.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// Config is the full on-disk configuration.
type Config struct {
	Device      DeviceConfig      `toml:"device"`
	MTPZ        MTPZConfig        `toml:"mtpz"`
	Timeouts    TimeoutsConfig    `toml:"timeouts"`
	Logging     LoggingConfig     `toml:"logging"`
	Cache       CacheConfig       `toml:"cache"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

// DeviceConfig selects which USB device to open.
type DeviceConfig struct {
	// Selector is either "vid:pid" in hex (e.g. "05ac:12ab") or a
	// regular expression matched against the device's product string.
	Selector string `toml:"selector"`
}

// MTPZConfig locates the trusted-application key bundle.
type MTPZConfig struct {
	KeyBundlePath string `toml:"key_bundle_path"`
}

// TimeoutsConfig overrides the session's default per-operation
// timeouts.
type TimeoutsConfig struct {
	OperationMillis int `toml:"operation_ms"`
	DataMillis      int `toml:"data_ms"`
}

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	Level string `toml:"level"`
	Debug bool   `toml:"debug"`
}

// CacheConfig locates the SQLite library accelerator.
type CacheConfig struct {
	Path string `toml:"path"`
}

// DiagnosticsConfig controls the read-only event-feed server.
type DiagnosticsConfig struct {
	Enabled       bool   `toml:"enabled"`
	ListenAddress string `toml:"listen_address"`
}

// OperationTimeout returns the configured operation timeout, or def
// when unset.
func (c *Config) OperationTimeout(def time.Duration) time.Duration {
	if c.Timeouts.OperationMillis <= 0 {
		return def
	}
	return time.Duration(c.Timeouts.OperationMillis) * time.Millisecond
}

// DataTimeout returns the configured data-phase timeout, or def when
// unset.
func (c *Config) DataTimeout(def time.Duration) time.Duration {
	if c.Timeouts.DataMillis <= 0 {
		return def
	}
	return time.Duration(c.Timeouts.DataMillis) * time.Millisecond
}

// Default returns a configuration with sensible defaults for a
// freshly-created config file.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Device: DeviceConfig{Selector: ""},
		MTPZ: MTPZConfig{
			KeyBundlePath: filepath.Join(home, ".mtpz-data"),
		},
		Timeouts: TimeoutsConfig{
			OperationMillis: 5000,
			DataMillis:      30000,
		},
		Logging: LoggingConfig{
			Level: "info",
			Debug: false,
		},
		Cache: CacheConfig{
			Path: filepath.Join(home, ".mtpzhost", "library-cache.db"),
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:       false,
			ListenAddress: "127.0.0.1:8787",
		},
	}
}

// Load reads .env overrides (if present) then the TOML config file at
// path, creating it with defaults when missing. Env vars follow the
// MTPZHOST_SECTION_KEY convention, e.g. MTPZHOST_MTPZ_KEY_BUNDLE_PATH,
// and take precedence over the file for the handful of fields callers
// most often override at the shell (key bundle path and device
// selector).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := cfg.SaveToFile(path); err != nil {
			return nil, fmt.Errorf("config: writing default file: %w", err)
		}
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := os.LookupEnv("MTPZHOST_MTPZ_KEY_BUNDLE_PATH"); ok {
		c.MTPZ.KeyBundlePath = v
	}
	if v, ok := os.LookupEnv("MTPZHOST_DEVICE_SELECTOR"); ok {
		c.Device.Selector = v
	}
	if v, ok := os.LookupEnv("MTPZHOST_LOGGING_LEVEL"); ok {
		c.Logging.Level = v
	}
}

// SaveToFile writes c to path as TOML, creating parent directories as
// needed.
func (c *Config) SaveToFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: creating directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: creating file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(c)
}

// Validate rejects configurations that would fail later in a
// confusing way.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	if c.Diagnostics.Enabled && c.Diagnostics.ListenAddress == "" {
		return fmt.Errorf("diagnostics.listen_address is required when diagnostics are enabled")
	}
	return nil
}

// Watch starts watching path for writes and invokes onChange with the
// newly parsed Config each time, so a long-lived process (the
// diagnostics feed, chiefly) can pick up a new log level or device
// selector without a restart. The returned function stops the watch.
func Watch(path string, onChange func(*Config)) (func() error, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: starting watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					continue
				}
				onChange(cfg)
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w.Close, nil
}
