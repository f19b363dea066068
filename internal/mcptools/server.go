// Package mcptools exposes chronicle's run inspection and export surface
// as MCP tools, over stdio for agent hosts and HTTP for remote use.
package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewReportMCPServer creates an MCP server with the 4 report tools
// registered: report_status, report_resume, export_workflow, and
// list_templates.
func NewReportMCPServer() *mcp.Server {
	svc := NewReportService()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "chronicle",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "report_status",
		Description: "Get a run's per-stage workflow status and the final report path if one exists.",
	}, svc.ReportStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "report_resume",
		Description: "Find where a resumed run would pick up: the first stage without a completed result.",
	}, svc.ReportResume)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_workflow",
		Description: "Export a run's workflow record as JSON or a Mermaid diagram of the stage graph.",
	}, svc.ExportWorkflow)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_templates",
		Description: "List the built-in report templates and the sections each one requires.",
	}, svc.ListTemplates)

	return server
}

// RunMCPServerStdio runs the MCP server on stdio transport, blocking until
// stdin is closed or the context is cancelled.
func RunMCPServerStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunMCPServerHTTP starts an HTTP server exposing the report MCP tools.
func RunMCPServerHTTP(ctx context.Context, addr string) error {
	server := NewReportMCPServer()

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
