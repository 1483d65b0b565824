// Package config handles configuration loading, validation, and hot reload
// for the pinfield demo applications.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete application configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Field configures the PIN entry widget.
	Field FieldConfig `toml:"field" json:"field" yaml:"field"`

	// Verifier configures the local demo verifier.
	Verifier VerifierConfig `toml:"verifier" json:"verifier" yaml:"verifier"`

	// Storage configures snapshot persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// FieldConfig holds the widget parameters.
type FieldConfig struct {
	// Length is the number of digit cells.
	Length int `toml:"length" json:"length" yaml:"length"`

	// Secure masks entered digits with a placeholder glyph. Display only;
	// the data model is unaffected.
	Secure bool `toml:"secure" json:"secure" yaml:"secure"`

	// ResendSeconds is the countdown before the resend action unlocks.
	ResendSeconds int `toml:"resend_seconds" json:"resend_seconds" yaml:"resend_seconds"`
}

// VerifierConfig holds the demo verifier parameters.
type VerifierConfig struct {
	// CodeHash is the bcrypt hash of the expected code. The code itself is
	// never stored.
	CodeHash string `toml:"code_hash" json:"code_hash" yaml:"code_hash"`

	// LatencyMs delays each verification to simulate a network round-trip.
	LatencyMs int `toml:"latency_ms" json:"latency_ms" yaml:"latency_ms"`
}

// StorageConfig holds snapshot persistence configuration.
type StorageConfig struct {
	// Path is the SQLite database file for snapshots. Empty disables
	// persistence.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `toml:"output" json:"output" yaml:"output"`
}

// DefaultConfig returns the default configuration. An empty code hash makes
// the demo front-ends hash a throwaway default code at startup.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Field: FieldConfig{
			Length:        6,
			Secure:        false,
			ResendSeconds: 45,
		},
		Verifier: VerifierConfig{
			CodeHash:  "",
			LatencyMs: 800,
		},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// defaultStoragePath returns the platform-specific snapshot database path.
func defaultStoragePath() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Application Support", "pinfield", "snapshots.db")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "pinfield", "snapshots.db")
	default:
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome == "" {
			homeDir, _ := os.UserHomeDir()
			dataHome = filepath.Join(homeDir, ".local", "share")
		}
		return filepath.Join(dataHome, "pinfield", "snapshots.db")
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Version != Version {
		errs = append(errs, fmt.Errorf("unsupported config version %d", c.Version))
	}
	if c.Field.Length < 1 || c.Field.Length > 12 {
		errs = append(errs, fmt.Errorf("field length %d out of range [1,12]", c.Field.Length))
	}
	if c.Field.ResendSeconds < 1 {
		errs = append(errs, fmt.Errorf("resend_seconds %d must be positive", c.Field.ResendSeconds))
	}
	if c.Verifier.CodeHash != "" && !strings.HasPrefix(c.Verifier.CodeHash, "$2") {
		errs = append(errs, errors.New("verifier code_hash is not a bcrypt hash"))
	}
	if c.Verifier.LatencyMs < 0 {
		errs = append(errs, fmt.Errorf("verifier latency_ms %d must not be negative", c.Verifier.LatencyMs))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// ApplyEnvOverrides applies PINFIELD_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PINFIELD_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Field.Length = n
		}
	}
	if v := os.Getenv("PINFIELD_SECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Field.Secure = b
		}
	}
	if v := os.Getenv("PINFIELD_RESEND_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Field.ResendSeconds = n
		}
	}
	if v := os.Getenv("PINFIELD_CODE_HASH"); v != "" {
		c.Verifier.CodeHash = v
	}
	if v := os.Getenv("PINFIELD_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("PINFIELD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
