package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/chronicle/internal/mcptools"
)

func newServeMCPCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve run inspection and export tools over MCP",
		Long: "Serve run inspection and export tools over MCP. By default the\n" +
			"server speaks stdio for agent hosts; --http switches to a\n" +
			"streamable HTTP endpoint.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if httpAddr != "" {
				return mcptools.RunMCPServerHTTP(ctx, httpAddr)
			}
			return mcptools.RunMCPServerStdio(ctx, mcptools.NewReportMCPServer())
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "listen address for HTTP transport (default stdio)")
	return cmd
}
