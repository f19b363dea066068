package mcptools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/chronicle/internal/pipeline"
	"github.com/dusk-indust/chronicle/internal/workflow"
)

func notesFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	rec, err := workflow.NewRecorder(dir, "run-42", pipeline.StageNames(pipeline.DeclarationOrder))
	require.NoError(t, err)
	require.NoError(t, rec.Record("scout", workflow.StatusRan, "generated"))
	require.NoError(t, rec.Record("plan", workflow.StatusRan, "generated"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.md"), []byte("# Findings\n"), 0o644))
	return dir
}

func TestReportStatus(t *testing.T) {
	dir := notesFixture(t)
	svc := NewReportService()

	_, out, err := svc.ReportStatus(context.Background(), nil, ReportStatusInput{NotesDir: dir})
	require.NoError(t, err)

	assert.Equal(t, "run-42", out.RunID)
	assert.NotEmpty(t, out.Report)

	byName := make(map[string]string)
	for _, st := range out.Stages {
		byName[st.Name] = st.Status
	}
	assert.Equal(t, "ran", byName["scout"])
	assert.Equal(t, "pending", byName["writer"])
}

func TestReportStatus_MissingDir(t *testing.T) {
	svc := NewReportService()
	_, _, err := svc.ReportStatus(context.Background(), nil, ReportStatusInput{NotesDir: t.TempDir()})
	require.Error(t, err)
}

func TestReportResume(t *testing.T) {
	dir := notesFixture(t)
	svc := NewReportService()

	_, out, err := svc.ReportResume(context.Background(), nil, ReportResumeInput{NotesDir: dir})
	require.NoError(t, err)
	assert.False(t, out.Complete)
	assert.Equal(t, "alignment", out.NextStage)
}

func TestExportWorkflow_JSON(t *testing.T) {
	dir := notesFixture(t)
	svc := NewReportService()

	_, out, err := svc.ExportWorkflow(context.Background(), nil, ExportWorkflowInput{NotesDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "json", out.Format)
	assert.Contains(t, out.Content, "run-42")
}

func TestExportWorkflow_Mermaid(t *testing.T) {
	dir := notesFixture(t)
	svc := NewReportService()

	_, out, err := svc.ExportWorkflow(context.Background(), nil, ExportWorkflowInput{NotesDir: dir, Format: "mermaid"})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "graph TD")
}

func TestExportWorkflow_UnknownFormat(t *testing.T) {
	svc := NewReportService()
	_, _, err := svc.ExportWorkflow(context.Background(), nil, ExportWorkflowInput{NotesDir: t.TempDir(), Format: "svg"})
	require.Error(t, err)
}

func TestListTemplates(t *testing.T) {
	svc := NewReportService()
	_, out, err := svc.ListTemplates(context.Background(), nil, ListTemplatesInput{})
	require.NoError(t, err)

	names := make([]string, 0, len(out.Templates))
	for _, tpl := range out.Templates {
		names = append(names, tpl.Name)
		assert.NotEmpty(t, tpl.Sections, tpl.Name)
	}
	assert.Contains(t, names, "research-report")
}

func TestNewReportMCPServerRegistersTools(t *testing.T) {
	server := NewReportMCPServer()
	require.NotNil(t, server)
}
