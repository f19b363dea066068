package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/chronicle/internal/config"
	"github.com/dusk-indust/chronicle/internal/templatedata"
)

func newInitCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Seed a directory with an editable config and report template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(filepath.Join(dir, "templates"), 0o755); err != nil {
				return err
			}

			cfgPath := filepath.Join(dir, "chronicle.yaml")
			if err := writeIfAbsent(cfgPath, config.DefaultYAML()); err != nil {
				return err
			}

			tplData, err := templatedata.WriteDefault()
			if err != nil {
				return err
			}
			tplPath := filepath.Join(dir, "templates", templatedata.DefaultName+".yaml")
			if err := writeIfAbsent(tplPath, tplData); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", cfgPath, tplPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "directory to initialize")
	return cmd
}

// writeIfAbsent refuses to clobber files the user may have edited.
func writeIfAbsent(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", path)
	}
	return os.WriteFile(path, data, 0o644)
}
