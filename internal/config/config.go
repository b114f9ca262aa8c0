package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultInitialSlots = 64
	// MaxInitialSlots bounds the arena preallocation.
	MaxInitialSlots  = 1 << 24
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
)

// Config represents the rol.yaml configuration.
type Config struct {
	Heap     HeapConfig     `yaml:"heap"`
	Compiler CompilerConfig `yaml:"compiler"`
	GC       GCConfig       `yaml:"gc"`
	Log      LogConfig      `yaml:"log"`
}

type HeapConfig struct {
	// InitialSlots is the number of arena slots reserved up front.
	InitialSlots int `yaml:"initial_slots"`
}

type CompilerConfig struct {
	// Verify checks listings produced without compiling, such as the ir
	// subcommand output. Compiled functions are always verified.
	Verify bool `yaml:"verify"`
	// DumpIR logs every emitted function at debug level.
	DumpIR bool `yaml:"dump_ir"`
}

type GCConfig struct {
	// CollectAfterEval runs a collection after every evaluation.
	CollectAfterEval bool `yaml:"collect_after_eval"`
}

type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the configuration used when no rol.yaml exists.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses a rol.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses rol.yaml content from bytes.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for rol.yaml starting from dir and walking up
// to parent directories.
// Returns the path to the config file and nil error if found,
// or empty string and nil error if not found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		candidate = filepath.Join(dir, "rol.yml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// validate checks the configuration for semantic errors.
func (c *Config) validate(path string) error {
	if c.Heap.InitialSlots < 0 {
		return fmt.Errorf("%s: heap.initial_slots must not be negative, got %d", path, c.Heap.InitialSlots)
	}
	if c.Heap.InitialSlots > MaxInitialSlots {
		return fmt.Errorf("%s: heap.initial_slots %d exceeds %d", path, c.Heap.InitialSlots, MaxInitialSlots)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s: log.level %q is not one of debug, info, warn, error", path, c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%s: log.format %q is not one of text, json", path, c.Log.Format)
	}
	return nil
}

// setDefaults fills in default values for omitted fields.
func (c *Config) setDefaults() {
	if c.Heap.InitialSlots == 0 {
		c.Heap.InitialSlots = DefaultInitialSlots
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
