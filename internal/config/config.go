// Package config implements TOML configuration loading and validation for
// mediadmin. Defaults cover the zero-config first run; a config file and CLI
// flags override them in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	BaseURL  string        `toml:"base_url"`
	DataDir  string        `toml:"data_dir"`
	PageSize int           `toml:"page_size"`
	Logging  LoggingConfig `toml:"logging"`
	Upload   UploadConfig  `toml:"upload"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// UploadConfig controls client-side upload validation and the drop-folder
// watcher. MaxFileSize is in bytes; AllowedTypes are media types matched
// against the sniffed content of each staged file.
type UploadConfig struct {
	MaxFileSize  int64    `toml:"max_file_size"`
	AllowedTypes []string `toml:"allowed_types"`
	WatchSettle  string   `toml:"watch_settle"`
}

// Defaults for out-of-box use.
const (
	defaultBaseURL     = "http://localhost:5000/api"
	defaultPageSize    = 10
	defaultMaxFileSize = 5 * 1024 * 1024
	defaultWatchSettle = "2s"
)

var defaultAllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  defaultBaseURL,
		DataDir:  defaultDataDir(),
		PageSize: defaultPageSize,
		Logging:  LoggingConfig{LogLevel: "info"},
		Upload: UploadConfig{
			MaxFileSize:  defaultMaxFileSize,
			AllowedTypes: slices.Clone(defaultAllowedTypes),
			WatchSettle:  defaultWatchSettle,
		},
	}
}

// DefaultConfigPath returns the platform config file location,
// typically ~/.config/mediadmin/config.toml.
func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "mediadmin.toml")
	}

	return filepath.Join(base, "mediadmin", "config.toml")
}

// defaultDataDir returns where the session database lives,
// typically ~/.local/share/mediadmin.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "mediadmin")
}

// SessionDBPath returns the session database path under the data directory.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.DataDir, "session.db")
}

// WatchSettleDuration parses the watch_settle interval. Validate guarantees
// it parses, so errors here only occur on an unvalidated Config.
func (c *Config) WatchSettleDuration() (time.Duration, error) {
	return time.ParseDuration(c.Upload.WatchSettle)
}

// Validate checks a Config for values that would misbehave at runtime.
func Validate(cfg *Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}

	if cfg.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", cfg.PageSize)
	}

	if cfg.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload.max_file_size must be positive, got %d", cfg.Upload.MaxFileSize)
	}

	if len(cfg.Upload.AllowedTypes) == 0 {
		return fmt.Errorf("upload.allowed_types must not be empty")
	}

	if _, err := time.ParseDuration(cfg.Upload.WatchSettle); err != nil {
		return fmt.Errorf("upload.watch_settle: %w", err)
	}

	if cfg.Logging.LogLevel != "" && !slices.Contains(validLogLevels, cfg.Logging.LogLevel) {
		return fmt.Errorf("logging.log_level must be one of %v, got %q", validLogLevels, cfg.Logging.LogLevel)
	}

	return nil
}
