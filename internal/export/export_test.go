package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/chronicle/internal/pipeline"
	"github.com/dusk-indust/chronicle/internal/workflow"
)

func writtenRecord(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	rec, err := workflow.NewRecorder(dir, "run-1", pipeline.StageNames(pipeline.DeclarationOrder))
	require.NoError(t, err)
	require.NoError(t, rec.Record("scout", workflow.StatusRan, "generated"))
	require.NoError(t, rec.Record("plan", workflow.StatusCached, "fingerprint hit"))
	require.NoError(t, rec.Record("alignment", workflow.StatusDisabled, "not selected"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scout.md"), []byte("notes"), 0o644))
	return dir
}

func TestExportRun(t *testing.T) {
	dir := writtenRecord(t)

	out, err := ExportRun(dir)
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.RunID)
	assert.Len(t, out.Transitions, 3)

	byName := make(map[string]StageExport)
	for _, s := range out.Stages {
		byName[s.Name] = s
	}
	assert.Equal(t, "ran", byName["scout"].Status)
	assert.NotEmpty(t, byName["scout"].NotePath)
	assert.Equal(t, "cached", byName["plan"].Status)
	assert.Equal(t, "pending", byName["writer"].Status)
	assert.Empty(t, byName["writer"].NotePath)
}

func TestExportRun_MissingRecord(t *testing.T) {
	_, err := ExportRun(t.TempDir())
	require.Error(t, err)
}

func TestGenerateMermaid(t *testing.T) {
	dir := writtenRecord(t)
	record, err := workflow.LoadRecord(dir)
	require.NoError(t, err)

	diagram := GenerateMermaid(record)
	assert.Contains(t, diagram, "graph TD")
	assert.Contains(t, diagram, "scout<br/>ran")
	assert.Contains(t, diagram, "alignment<br/>disabled")
	assert.Contains(t, diagram, "stroke-dasharray")
	// Every dependency edge appears.
	assert.Contains(t, diagram, "-->")
}

func TestWriteJSONAndMermaid(t *testing.T) {
	dir := writtenRecord(t)

	out, err := ExportRun(dir)
	require.NoError(t, err)

	jsonPath := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, WriteJSON(out, jsonPath))
	assert.FileExists(t, jsonPath)

	mmdPath := filepath.Join(t.TempDir(), "workflow.mmd")
	require.NoError(t, WriteMermaid(dir, mmdPath))
	data, err := os.ReadFile(mmdPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "graph TD")
}
