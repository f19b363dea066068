package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/chronicle/internal/export"
	"github.com/dusk-indust/chronicle/internal/workflow"
)

func newExportCmd(root *rootFlags) *cobra.Command {
	var format, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the run's workflow record as JSON or a Mermaid diagram",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch format {
			case "json":
				run, err := export.ExportRun(root.NotesDir)
				if err != nil {
					return err
				}
				if outPath != "" {
					return export.WriteJSON(run, outPath)
				}
				data, err := json.MarshalIndent(run, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil

			case "mermaid":
				if outPath != "" {
					return export.WriteMermaid(root.NotesDir, outPath)
				}
				record, err := workflow.LoadRecord(root.NotesDir)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), export.GenerateMermaid(record))
				return nil

			default:
				return fmt.Errorf("unknown format %q (want json or mermaid)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "export format: json or mermaid")
	cmd.Flags().StringVar(&outPath, "out", "", "write to a file instead of stdout")
	return cmd
}
