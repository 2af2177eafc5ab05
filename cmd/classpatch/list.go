package main

import (
	"fmt"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/daimatz/classpatch/pkg/boundary"
	"github.com/daimatz/classpatch/pkg/injector"
)

var listFlags struct {
	match string
}

var listCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List the classes of a jar or jmod, marking patch targets",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		jar, err := boundary.OpenJar(args[0], cfg.MaxClassSize)
		if err != nil {
			return err
		}
		g, err := glob.Compile(listFlags.match, '.')
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", listFlags.match, err)
		}
		for _, name := range filterClasses(jar.Classes(), g) {
			mark := " "
			if injector.IsTarget(name) {
				mark = "*"
			}
			fmt.Fprintf(c.OutOrStdout(), "%s %s\n", mark, name)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listFlags.match, "match", "m", "**", "Glob over binary class names; '*' stays within a package")
}

func filterClasses(names []string, g glob.Glob) []string {
	var out []string
	for _, n := range names {
		if g.Match(n) {
			out = append(out, n)
		}
	}
	return out
}
