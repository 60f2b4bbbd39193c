package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/problems"
)

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "List built-in problems and algorithms",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROBLEM\tDESCRIPTION")
		for _, name := range problems.Names() {
			p, _ := problems.Get(name)
			fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Description)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\nAlgorithms: %v\n", opt.Algorithms())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(problemsCmd)
}
