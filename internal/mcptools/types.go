package mcptools

// --- MCP tool types for the report server mode (serve-mcp) ---
// These tools let an agent inspect and export runs through structured
// calls instead of shelling out to the CLI.

// ReportStatusInput is the input for the report_status MCP tool.
type ReportStatusInput struct {
	NotesDir string `json:"notesDir" jsonschema:"path to the run's notes directory"`
}

// StageStatus is one stage's latest workflow state.
type StageStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ReportStatusOutput is the result of the report_status MCP tool.
type ReportStatusOutput struct {
	RunID  string        `json:"runId"`
	Stages []StageStatus `json:"stages"`
	Report string        `json:"reportPath,omitempty"`
}

// ReportResumeInput is the input for the report_resume MCP tool.
type ReportResumeInput struct {
	NotesDir string `json:"notesDir" jsonschema:"path to the run's notes directory"`
}

// ReportResumeOutput is the result of the report_resume MCP tool.
type ReportResumeOutput struct {
	Complete  bool   `json:"complete"`
	NextStage string `json:"nextStage,omitempty"`
}

// ExportWorkflowInput is the input for the export_workflow MCP tool.
type ExportWorkflowInput struct {
	NotesDir string `json:"notesDir" jsonschema:"path to the run's notes directory"`
	Format   string `json:"format,omitempty" jsonschema:"export format: json or mermaid (default json)"`
}

// ExportWorkflowOutput is the result of the export_workflow MCP tool.
type ExportWorkflowOutput struct {
	Format  string `json:"format"`
	Content string `json:"content"`
}

// ListTemplatesInput is the input for the list_templates MCP tool.
type ListTemplatesInput struct{}

// TemplateSummary describes one built-in template.
type TemplateSummary struct {
	Name     string   `json:"name"`
	Sections []string `json:"sections"`
}

// ListTemplatesOutput is the result of the list_templates MCP tool.
type ListTemplatesOutput struct {
	Templates []TemplateSummary `json:"templates"`
}
