// Package config holds Gold Box configuration, loaded from
// .goldbox/config.yaml with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all Gold Box configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Schema cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Post-processing thresholds
	PostProcess PostProcessConfig `yaml:"postprocess"`

	// Translation settings
	Translate TranslateConfig `yaml:"translate"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CacheConfig configures the schema cache.
type CacheConfig struct {
	// PersistPath is the SQLite file the cache snapshots to.
	// Empty means in-memory only.
	PersistPath string `yaml:"persist_path"`
}

// PostProcessConfig configures the batch compression passes.
type PostProcessConfig struct {
	// MinRedundancyLength is the minimum trimmed string length for a
	// field to participate in redundancy elimination.
	MinRedundancyLength int `yaml:"min_redundancy_length"`

	// ContainmentRatio is the minimum share of a field's text that must
	// appear inside another field of the same card for the shorter one
	// to be dropped.
	ContainmentRatio float64 `yaml:"containment_ratio"`
}

// TranslateConfig configures the translator.
type TranslateConfig struct {
	// MaxConcurrent bounds parallel encodes during batch translation.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// LoggingConfig controls categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "goldbox",
		Version: "0.1.0",
		Cache: CacheConfig{
			PersistPath: "",
		},
		PostProcess: PostProcessConfig{
			MinRedundancyLength: 20,
			ContainmentRatio:    0.9,
		},
		Translate: TranslateConfig{
			MaxConcurrent: 4,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("GOLDBOX_CACHE_PATH"); path != "" {
		c.Cache.PersistPath = path
	}
	if os.Getenv("GOLDBOX_DEBUG") == "1" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// DefaultPath returns the config path inside a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".goldbox", "config.yaml")
}
