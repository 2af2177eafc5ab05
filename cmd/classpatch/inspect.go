package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/daimatz/classpatch/pkg/classfile"
	"github.com/daimatz/classpatch/pkg/classwriter"
	"github.com/daimatz/classpatch/pkg/injector"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.class>",
	Short: "Print the members of a class file",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		cf, err := classfile.ParseFile(args[0])
		if err != nil {
			return err
		}
		w, err := classwriter.New(cf)
		if err != nil {
			return err
		}
		return inspect(c.OutOrStdout(), w)
	},
}

func inspect(out io.Writer, w *classwriter.Writer) error {
	super := w.SuperName()
	if super == "" {
		super = "-"
	}
	fmt.Fprintf(out, "class %s extends %s (version %d, access 0x%04x)\n",
		classfile.BinaryName(w.Name()), classfile.BinaryName(super), w.Version(), w.Access())

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, f := range w.Fields() {
		fmt.Fprintf(tw, "field\t%s\t%s\t0x%04x\n", f.Name(), f.Descriptor(), f.Access())
	}
	for _, m := range w.Methods() {
		code, err := m.Peek()
		if err != nil {
			return fmt.Errorf("%s%s: %w", m.Name(), m.Descriptor(), err)
		}
		if code == nil {
			fmt.Fprintf(tw, "method\t%s\t%s\t0x%04x\tno code\n", m.Name(), m.Descriptor(), m.Access())
			continue
		}
		insns := 0
		for _, insn := range code.Insns {
			if !insn.IsMark() {
				insns++
			}
		}
		fmt.Fprintf(tw, "method\t%s\t%s\t0x%04x\tinsns=%d max_stack=%d max_locals=%d\n",
			m.Name(), m.Descriptor(), m.Access(), insns, code.MaxStack, code.MaxLocals)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if injector.IsTarget(classfile.BinaryName(w.Name())) {
		fmt.Fprintln(out, "patch target")
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the injector version",
	Run: func(c *cobra.Command, _ []string) {
		fmt.Fprintf(c.OutOrStdout(), "classpatch version %s\n", injector.Version)
	},
}
