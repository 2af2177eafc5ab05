// Package config holds the configuration of the classpatch tool.
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/daimatz/classpatch/pkg/logging"
)

// Config is the top-level configuration.
type Config struct {
	// Logging configuration.
	Logging logging.Config `yaml:"logging"`
	// Platform is the name reported to the injector core.
	Platform string `yaml:"platform"`
	// DumpDir receives a copy of every class before it is injected.
	// Empty disables the dump.
	DumpDir string `yaml:"dump_dir"`
	// MaxClassSize bounds the size of a single archive entry.
	MaxClassSize datasize.ByteSize `yaml:"max_class_size"`
	// Strict makes the tool exit with an error when any class failed.
	Strict bool `yaml:"strict"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: logging.Config{
			Level: zapcore.InfoLevel,
		},
		Platform:     "classpatch",
		DumpDir:      "classes",
		MaxClassSize: 8 * datasize.MB,
	}
}

// LoadConfig loads configuration from a YAML file at the specified path,
// on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}
	if cfg.MaxClassSize == 0 {
		return nil, fmt.Errorf("max_class_size must be positive")
	}

	return cfg, nil
}
