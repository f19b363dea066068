// Command chronicle turns an archive of research sources into a structured
// report through a staged, cached, resumable generation pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/chronicle/internal/pipeline"
)

// version is set by the linker at build time.
var version = "dev"

// rootFlags are shared across subcommands.
type rootFlags struct {
	ConfigPath string
	NotesDir   string
	Verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// A stage failure already carries its stage and kind; anything
		// else gets the generic prefix.
		if _, ok := pipeline.AsStageError(err); !ok {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "chronicle",
		Short:         "Generate evidence-grounded reports from a source archive",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to a chronicle.yaml config file")
	root.PersistentFlags().StringVar(&flags.NotesDir, "notes", "notes", "directory for stage notes, workflow record, and the report")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newRunCmd(flags),
		newResumeCmd(flags),
		newStatusCmd(flags),
		newExportCmd(flags),
		newServeMCPCmd(),
		newInitCmd(),
	)
	return root
}
