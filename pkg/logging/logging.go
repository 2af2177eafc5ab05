// Package logging builds the process logger.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Config is the configuration for the logging subsystem.
type Config struct {
	// Level is the logging level.
	Level zapcore.Level `yaml:"level"`
	// Output is "stderr", "stdout" or a file path. Empty means stderr.
	Output string `yaml:"output"`
}

// Init initializes the logging subsystem. The returned level can be
// changed while the logger is in use. Levels are colored only when the
// output is a terminal.
func Init(cfg *Config) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	output := cfg.Output
	if output == "" {
		output = "stderr"
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if isTerminal(output) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(cfg.Level),
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Sugar(), config.Level, nil
}

func isTerminal(output string) bool {
	switch output {
	case "stderr":
		return term.IsTerminal(int(os.Stderr.Fd()))
	case "stdout":
		return term.IsTerminal(int(os.Stdout.Fd()))
	}
	return false
}
