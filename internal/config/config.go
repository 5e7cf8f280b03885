// Package config holds the gridshift tool configuration.
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/geal-ai/gridshift"
)

// Config is the top-level configuration, read from YAML.
type Config struct {
	// Dataset is the path of a dataset blob. Empty means the bundled demo
	// dataset.
	Dataset string        `yaml:"dataset"`
	Logging LoggingConfig `yaml:"logging"`
	Verify  VerifyConfig  `yaml:"verify"`
	Build   BuildConfig   `yaml:"build"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// VerifyConfig configures `gridshift verify`.
type VerifyConfig struct {
	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// BuildConfig configures `gridshift build`.
type BuildConfig struct {
	Name         string     `yaml:"name"`
	DecimalScale int        `yaml:"decimal_scale"`
	Table        string     `yaml:"table"` // sqlite source table
	Grid         GridConfig `yaml:"grid"`
}

// GridConfig is the lattice new datasets are built on.
type GridConfig struct {
	OriginEasting  int32  `yaml:"origin_easting"`
	OriginNorthing int32  `yaml:"origin_northing"`
	Spacing        int32  `yaml:"spacing"`
	Cols           uint32 `yaml:"cols"`
	Rows           uint32 `yaml:"rows"`
}

// Definition converts g for gridshift.Build.
func (g GridConfig) Definition() gridshift.GridDefinition {
	return gridshift.GridDefinition{
		OriginEasting:  g.OriginEasting,
		OriginNorthing: g.OriginNorthing,
		Spacing:        g.Spacing,
		Cols:           g.Cols,
		Rows:           g.Rows,
	}
}

// DefaultConfig returns the defaults: the bundled dataset, info logging, and
// the OSTN15 national grid (1 km nodes, 701x1251) for builds.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Build: BuildConfig{
			DecimalScale: 3,
			Table:        "ostn15",
			Grid: GridConfig{
				Spacing: 1000,
				Cols:    701,
				Rows:    1251,
			},
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes c as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("GRIDSHIFT_DATASET"); path != "" {
		c.Dataset = path
	}
	if level := os.Getenv("GRIDSHIFT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate rejects settings the tool cannot run with.
func (c *Config) Validate() error {
	if _, err := c.ZapLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q: want json or console", c.Logging.Format)
	}
	if c.Verify.Workers < 0 {
		return fmt.Errorf("verify.workers %d must not be negative", c.Verify.Workers)
	}
	if c.Build.DecimalScale < 0 || c.Build.DecimalScale > 9 {
		return fmt.Errorf("build.decimal_scale %d out of range [0, 9]", c.Build.DecimalScale)
	}
	return nil
}

// ZapLevel parses Logging.Level.
func (c *Config) ZapLevel() (zapcore.Level, error) {
	l, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return l, fmt.Errorf("logging.level: %w", err)
	}
	return l, nil
}
