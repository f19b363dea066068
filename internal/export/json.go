package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dusk-indust/chronicle/internal/pipeline"
	"github.com/dusk-indust/chronicle/internal/workflow"
)

// RunExport is the top-level JSON export structure.
type RunExport struct {
	RunID       string                `json:"runId"`
	ExportedAt  string                `json:"exportedAt"`
	Stages      []StageExport         `json:"stages"`
	Metadata    *pipeline.Metadata    `json:"run,omitempty"`
	Transitions []workflow.Transition `json:"transitions,omitempty"`
}

// StageExport describes one pipeline stage's latest state.
type StageExport struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	NotePath string `json:"notePath,omitempty"`
}

// ExportRun builds a RunExport from a run's notes directory. A missing
// run.json is tolerated (the run may have been interrupted before metadata
// landed); a missing workflow record is not.
func ExportRun(notesDir string) (*RunExport, error) {
	record, err := workflow.LoadRecord(notesDir)
	if err != nil {
		return nil, fmt.Errorf("export: load workflow record: %w", err)
	}

	out := &RunExport{
		RunID:       record.RunID,
		ExportedAt:  time.Now().UTC().Format(time.RFC3339),
		Transitions: record.Transitions,
	}

	for _, id := range pipeline.DeclarationOrder {
		se := StageExport{
			Name:   string(id),
			Status: string(record.LastStatus(string(id))),
		}
		note := filepath.Join(notesDir, string(id)+".md")
		if _, err := os.Stat(note); err == nil {
			se.NotePath = note
		}
		out.Stages = append(out.Stages, se)
	}

	if data, err := os.ReadFile(filepath.Join(notesDir, "run.json")); err == nil {
		var meta pipeline.Metadata
		if err := json.Unmarshal(data, &meta); err == nil {
			out.Metadata = &meta
		}
	}

	return out, nil
}

// WriteJSON marshals a RunExport to path with stable indentation.
func WriteJSON(export *RunExport, path string) error {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}

// WriteMermaid renders the workflow diagram to path.
func WriteMermaid(notesDir, path string) error {
	record, err := workflow.LoadRecord(notesDir)
	if err != nil {
		return fmt.Errorf("export: load workflow record: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateMermaid(record)), 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}
