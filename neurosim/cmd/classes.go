package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/neurosim/sim"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "List the object classes with their fields, ports and phases.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		printClasses(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(classesCmd)
}

func printClasses(w io.Writer) {
	for _, c := range sim.Classes() {
		fmt.Fprintf(w, "%s\n", c.Name)
		if c.Doc != "" {
			fmt.Fprintf(w, "  %s\n", c.Doc)
		}

		for _, f := range c.Fields {
			access := "rw"
			if f.ReadOnly {
				access = "ro"
			}

			fmt.Fprintf(w, "  field %-14s %s default %g\n", f.Name, access, f.Default)
		}

		for _, p := range c.Ports {
			fmt.Fprintf(w, "  port  %-14s %s %s/%d\n", p.Name, p.Dir, p.Mode, p.Arity)
		}

		for _, p := range c.Phases {
			fmt.Fprintf(w, "  phase %-14s %s\n", p.Name, p.Category)
		}
	}
}
