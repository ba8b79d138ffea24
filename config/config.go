// Package config handles loader configuration.
//
// Configuration is loaded with overlay semantics:
//
//  1. Start with built-in defaults (embedded via go:embed from default.toml)
//  2. Overlay with config file values (if file exists)
//  3. CLI flags and environment variables override at runtime (handled by CLI layer)
//
// This ensures a valid configuration is always available, even when no
// config file exists. The TOML decoder only sets fields present in the
// file, leaving unspecified fields at their default values. A locations
// list in the file replaces the default list wholesale; load order is
// the list order.
//
// If the config file exists but is invalid, Load returns an error rather
// than silently falling back to defaults.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed default.toml
var defaultConfigTOML string

// DefaultConfigPath is the default path to the config file.
const DefaultConfigPath = "/etc/bpfload/bpfload.toml"

// Config is the top-level loader configuration.
type Config struct {
	Loader     LoaderConfig     `toml:"loader"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Locations  []LocationConfig `toml:"locations"`
	Store      StoreConfig      `toml:"store"`
	Logging    LoggingConfig    `toml:"logging"`
}

// LoaderConfig controls the loader's own identity.
type LoaderConfig struct {
	// Version is the platform generation the loader announces when
	// gating objects against their version windows.
	Version uint32 `toml:"version"`
}

// FilesystemConfig controls the pinning filesystem.
type FilesystemConfig struct {
	// PinRoot is the bpffs mount point all pins land under.
	PinRoot string `toml:"pin_root"`
	// MountInfo is the mountinfo file consulted to detect an
	// existing mount.
	MountInfo string `toml:"mountinfo"`
}

// LocationConfig pairs a directory of object files with the structural
// pin prefix applied to objects that do not override it.
type LocationConfig struct {
	Dir    string `toml:"dir"`
	Prefix string `toml:"prefix"`
}

// StoreConfig controls the load-manifest database.
type StoreConfig struct {
	// Path is the SQLite database path. Empty disables the
	// manifest.
	Path string `toml:"path"`
}

// LoggingConfig controls logging behaviour.
type LoggingConfig struct {
	// Level is the log spec (e.g., "info" or "info,loader=debug").
	Level string `toml:"level"`
	// Format is the output format: "text" or "json".
	Format string `toml:"format"`
}

// DefaultConfig returns the default configuration from the embedded
// default.toml. This provides a valid baseline that is always
// available.
func DefaultConfig() Config {
	var cfg Config
	if _, err := toml.Decode(defaultConfigTOML, &cfg); err != nil {
		// Unreachable unless default.toml is broken at build
		// time.
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// Load reads configuration from a file path with overlay semantics.
//
// Behaviour:
//   - File missing: returns default configuration (no error)
//   - File exists and valid: overlays file values onto defaults
//   - File exists but invalid: returns error (fail fast)
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file is optional.
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Loader.Version == 0 {
		return fmt.Errorf("loader version must be non-zero")
	}
	if !filepath.IsAbs(c.Filesystem.PinRoot) {
		return fmt.Errorf("pin_root %q must be absolute", c.Filesystem.PinRoot)
	}
	if len(c.Locations) == 0 {
		return fmt.Errorf("no object locations configured")
	}
	for _, loc := range c.Locations {
		if !filepath.IsAbs(loc.Dir) {
			return fmt.Errorf("location dir %q must be absolute", loc.Dir)
		}
		if loc.Prefix != "" && !strings.HasSuffix(loc.Prefix, "/") {
			return fmt.Errorf("location prefix %q must end with /", loc.Prefix)
		}
		if strings.HasPrefix(loc.Prefix, "/") {
			return fmt.Errorf("location prefix %q must be relative", loc.Prefix)
		}
	}
	return nil
}
