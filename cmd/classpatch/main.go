package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/daimatz/classpatch/pkg/config"
	"github.com/daimatz/classpatch/pkg/logging"
)

// Cmd is the command line arguments shared by all subcommands.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
	// Verbose lowers the log level to debug, whatever the config says.
	Verbose bool
}

var (
	cmd Cmd
	cfg   *config.Config
	log   *zap.SugaredLogger
	level zap.AtomicLevel
)

var rootCmd = &cobra.Command{
	Use:           "classpatch",
	Short:         "Patch WorldEdit classes for asynchronous editing",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		var err error
		if cmd.ConfigPath == "" {
			cfg = config.DefaultConfig()
		} else if cfg, err = config.LoadConfig(cmd.ConfigPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if log, level, err = logging.Init(&cfg.Logging); err != nil {
			return err
		}
		if cmd.Verbose {
			level.SetLevel(zapcore.DebugLevel)
		}
		log.Debugw("logger initialized", "level", level.Level(), "config", cmd.ConfigPath)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&cmd.Verbose, "verbose", "v", false, "Log debug events")
	rootCmd.AddCommand(patchCmd, listCmd, inspectCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
