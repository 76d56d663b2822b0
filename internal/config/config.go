package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sdfconvert configuration.
type Config struct {
	// Repair settings
	Repair RepairConfig `yaml:"repair"`

	// Output settings
	Output OutputConfig `yaml:"output"`

	// Record annotation settings
	Annotate AnnotateConfig `yaml:"annotate"`

	// Conversion catalog (SQLite)
	Catalog CatalogConfig `yaml:"catalog"`

	// Drop-directory watcher
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// RepairConfig configures block classification and repair.
type RepairConfig struct {
	// MaxAtoms caps the atom field accepted on a counts line and the
	// atom count inference may produce. The V2000 field is three
	// characters wide, so 999 is the hard ceiling.
	MaxAtoms int `yaml:"max_atoms"`

	// Workers is how many blocks are repaired concurrently. Output
	// order is preserved regardless.
	Workers int `yaml:"workers"`

	// Verify re-parses every repaired block with the molfile parser
	// before it is written out.
	Verify bool `yaml:"verify"`

	// VerifyWellFormed extends verification to blocks that needed no
	// repair. Off by default: untouched blocks always pass through.
	VerifyWellFormed bool `yaml:"verify_well_formed"`
}

// OutputConfig configures where converted files land.
type OutputConfig struct {
	// Dir receives converted files. Empty means a "converted"
	// directory beside the input file.
	Dir string `yaml:"dir"`

	// WriteFailed collects unrepairable blocks into a side file next
	// to the converted output.
	WriteFailed bool `yaml:"write_failed"`

	// FailedFile overrides where rejected blocks are collected. Empty
	// means "<name>_failed.sdf" beside the converted output.
	FailedFile string `yaml:"failed_file"`
}

// AnnotateConfig configures per-record data-item checks and additions.
type AnnotateConfig struct {
	// InChI adds an INCHI data item to records that carry an InChI
	// inside their COMMENT field but no INCHI item of their own.
	InChI bool `yaml:"inchi"`

	// RequiredTags lists data items every record should carry; records
	// missing any are logged. Empty disables the check.
	RequiredTags []string `yaml:"required_tags"`
}

// CatalogConfig configures the conversion catalog.
type CatalogConfig struct {
	// DatabasePath is the SQLite file recording runs and block
	// outcomes. Empty disables the catalog.
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig configures the drop-directory watcher.
type WatchConfig struct {
	// Dir is the directory watched for incoming SDF files.
	Dir string `yaml:"dir"`

	// Debounce is how long a file must stay quiet before conversion
	// starts; uploads and editors write in bursts.
	Debounce string `yaml:"debounce"`

	// Extensions lists the file suffixes treated as SDF input.
	Extensions []string `yaml:"extensions"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Repair: RepairConfig{
			MaxAtoms: 999,
			Workers:  1,
			Verify:   true,
		},

		Output: OutputConfig{
			WriteFailed: true,
		},

		Annotate: AnnotateConfig{
			InChI: false,
			RequiredTags: []string{
				"MASS SPECTRAL PEAKS",
				"INCHIKEY",
				"INCHI",
				"NAME",
				"EXACT MASS",
			},
		},

		Watch: WatchConfig{
			Debounce:   "500ms",
			Extensions: []string{".sdf"},
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults so the tool runs unconfigured.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

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
	if path := os.Getenv("SDFCONVERT_CATALOG"); path != "" {
		c.Catalog.DatabasePath = path
	}
	if dir := os.Getenv("SDFCONVERT_OUTPUT"); dir != "" {
		c.Output.Dir = dir
	}
}

// GetDebounce returns the watch debounce as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Repair.MaxAtoms < 1 || c.Repair.MaxAtoms > 999 {
		return fmt.Errorf("repair.max_atoms must be between 1 and 999, got %d", c.Repair.MaxAtoms)
	}
	if c.Repair.Workers < 1 {
		return fmt.Errorf("repair.workers must be at least 1, got %d", c.Repair.Workers)
	}
	if c.Watch.Debounce != "" {
		if d, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("watch.debounce is not a duration: %q", c.Watch.Debounce)
		} else if d <= 0 {
			return fmt.Errorf("watch.debounce must be positive, got %s", d)
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	return nil
}
