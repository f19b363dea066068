package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/chronicle/internal/export"
	"github.com/dusk-indust/chronicle/internal/workflow"
)

func newStatusCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show each stage's latest state for the run in the notes directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			run, err := export.ExportRun(root.NotesDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s\n\n", run.RunID)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tSTATUS\tNOTE")
			for _, st := range run.Stages {
				fmt.Fprintf(w, "%s\t%s\t%s\n", st.Name, st.Status, st.NotePath)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			record, err := workflow.LoadRecord(root.NotesDir)
			if err != nil {
				return err
			}
			if next, ok := workflow.ResumePoint(record); ok {
				fmt.Fprintf(out, "\nresume point: %s\n", next)
			} else {
				fmt.Fprintln(out, "\nall stages complete")
			}
			return nil
		},
	}
}
