package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/chronicle/internal/export"
	"github.com/dusk-indust/chronicle/internal/templatedata"
	"github.com/dusk-indust/chronicle/internal/workflow"
)

// ReportService handles MCP tool calls for the report server mode. It is
// read-only over notes directories; running the pipeline stays a CLI
// concern.
type ReportService struct{}

// NewReportService creates a ReportService.
func NewReportService() *ReportService {
	return &ReportService{}
}

// ReportStatus returns each stage's latest workflow status for a run.
func (s *ReportService) ReportStatus(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ReportStatusInput,
) (*mcp.CallToolResult, ReportStatusOutput, error) {
	run, err := export.ExportRun(input.NotesDir)
	if err != nil {
		return nil, ReportStatusOutput{}, err
	}

	out := ReportStatusOutput{RunID: run.RunID}
	for _, st := range run.Stages {
		out.Stages = append(out.Stages, StageStatus{Name: st.Name, Status: st.Status})
	}

	report := filepath.Join(input.NotesDir, "report.md")
	if _, err := os.Stat(report); err == nil {
		out.Report = report
	}
	return nil, out, nil
}

// ReportResume reports where a resumed run would pick up.
func (s *ReportService) ReportResume(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ReportResumeInput,
) (*mcp.CallToolResult, ReportResumeOutput, error) {
	record, err := workflow.LoadRecord(input.NotesDir)
	if err != nil {
		return nil, ReportResumeOutput{}, fmt.Errorf("load workflow record: %w", err)
	}

	next, ok := workflow.ResumePoint(record)
	if !ok {
		return nil, ReportResumeOutput{Complete: true}, nil
	}
	return nil, ReportResumeOutput{NextStage: next}, nil
}

// ExportWorkflow renders a run's workflow record as JSON or Mermaid.
func (s *ReportService) ExportWorkflow(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ExportWorkflowInput,
) (*mcp.CallToolResult, ExportWorkflowOutput, error) {
	format := input.Format
	if format == "" {
		format = "json"
	}

	switch format {
	case "json":
		run, err := export.ExportRun(input.NotesDir)
		if err != nil {
			return nil, ExportWorkflowOutput{}, err
		}
		data, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return nil, ExportWorkflowOutput{}, err
		}
		return nil, ExportWorkflowOutput{Format: format, Content: string(data)}, nil

	case "mermaid":
		record, err := workflow.LoadRecord(input.NotesDir)
		if err != nil {
			return nil, ExportWorkflowOutput{}, fmt.Errorf("load workflow record: %w", err)
		}
		return nil, ExportWorkflowOutput{Format: format, Content: export.GenerateMermaid(record)}, nil

	default:
		return nil, ExportWorkflowOutput{}, fmt.Errorf("unknown export format %q (want json or mermaid)", format)
	}
}

// ListTemplates enumerates the built-in report templates.
func (s *ReportService) ListTemplates(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ListTemplatesInput,
) (*mcp.CallToolResult, ListTemplatesOutput, error) {
	var out ListTemplatesOutput
	for _, name := range templatedata.Names() {
		tpl, err := templatedata.Load(name)
		if err != nil {
			return nil, ListTemplatesOutput{}, err
		}
		out.Templates = append(out.Templates, TemplateSummary{
			Name:     name,
			Sections: tpl.RequiredHeadings(),
		})
	}
	return nil, out, nil
}
