package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/daimatz/classpatch/pkg/boundary"
	"github.com/daimatz/classpatch/pkg/injector"
)

var patchFlags struct {
	out     string
	dumpDir string
	noDump  bool
	strict  bool
}

var patchCmd = &cobra.Command{
	Use:   "patch <archive|dir> -o <out>",
	Short: "Patch the WorldEdit classes of a jar, jmod or class directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		if c.Flags().Changed("dump-dir") {
			cfg.DumpDir = patchFlags.dumpDir
		}
		if patchFlags.noDump {
			cfg.DumpDir = ""
		}
		if c.Flags().Changed("strict") {
			cfg.Strict = patchFlags.strict
		}
		return runPatch(args[0], patchFlags.out)
	},
}

func init() {
	patchCmd.Flags().StringVarP(&patchFlags.out, "out", "o", "", "Output archive or class directory (required)")
	patchCmd.Flags().StringVar(&patchFlags.dumpDir, "dump-dir", "", "Directory receiving a copy of every patched class")
	patchCmd.Flags().BoolVar(&patchFlags.noDump, "no-dump", false, "Do not dump patched classes")
	patchCmd.Flags().BoolVar(&patchFlags.strict, "strict", false, "Fail when any class could not be patched")
	_ = patchCmd.MarkFlagRequired("out")
}

func runPatch(input, out string) error {
	info, err := os.Stat(input)
	if err != nil {
		return err
	}

	var (
		bound injector.Boundary
		jar   *boundary.Jar
	)
	if info.IsDir() {
		bound = &boundary.Dir{Root: input, Out: out}
	} else {
		jar, err = boundary.OpenJar(input, cfg.MaxClassSize)
		if err != nil {
			return err
		}
		bound = jar
	}

	core := injector.New(
		injector.WithDumpDir(cfg.DumpDir),
		injector.WithHierarchy(injector.NewClassHierarchy(bound)),
		injector.WithLogger(log),
	)
	report := core.Initialize(injector.NewLogPlatform(cfg.Platform, log), bound)
	if jar != nil {
		if err := writeArchive(jar, out); err != nil {
			return err
		}
	}

	log.Infow("patching finished",
		"input", input,
		"output", out,
		"injected", len(report.Injected()),
		"failed", len(report.Failed()),
	)
	if cfg.Strict {
		return report.Err()
	}
	return nil
}

func writeArchive(jar *boundary.Jar, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := jar.WriteJar(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", out, err)
	}
	return f.Close()
}
