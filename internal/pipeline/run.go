package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dusk-indust/chronicle/internal/config"
	"github.com/dusk-indust/chronicle/internal/tmpl"
)

// Run is one execution context: a read-only archive root, a pipeline-owned
// notes root, and an immutable configuration snapshot. The pipeline never
// deletes a Run's outputs; interrupted runs resume, they are not rolled
// back.
type Run struct {
	ID          string
	Topic       string
	ArchiveRoot string
	NotesRoot   string

	Config   config.Config
	Template *tmpl.Template

	// Force regenerates every stage even on a fingerprint hit; the fresh
	// result is still published under the (possibly unchanged) key.
	Force bool

	StartedAt time.Time
}

// NewRun creates a Run with a fresh id and creates the notes root. The
// archive root is never written to.
func NewRun(topic, archiveRoot, notesRoot string, cfg config.Config, template *tmpl.Template) (*Run, error) {
	abs, err := filepath.Abs(notesRoot)
	if err != nil {
		return nil, fmt.Errorf("pipeline: resolve notes root %s: %w", notesRoot, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: create notes root %s: %w", abs, err)
	}

	return &Run{
		ID:          uuid.NewString(),
		Topic:       topic,
		ArchiveRoot: archiveRoot,
		NotesRoot:   abs,
		Config:      cfg,
		Template:    template,
		StartedAt:   time.Now().UTC(),
	}, nil
}

// StageTiming records one stage's wall-clock duration.
type StageTiming struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	DurationMS int64  `json:"durationMs"`
}

// Metadata is the run record written to run.json for downstream consumers.
type Metadata struct {
	RunID        string        `json:"runId"`
	Topic        string        `json:"topic,omitempty"`
	Models       config.Models `json:"models"`
	Language     string        `json:"language"`
	Template     string        `json:"template"`
	Depth        string        `json:"depth"`
	OutputFormat string        `json:"outputFormat"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt"`
	GenCalls     int64         `json:"generationCalls"`
	Timings      []StageTiming `json:"timings"`
}

// WriteMetadata persists the run metadata record under the notes root.
func (r *Run) WriteMetadata(meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: marshal run metadata: %w", err)
	}
	path := filepath.Join(r.NotesRoot, "run.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("pipeline: write %s: %w", path, err)
	}
	return nil
}

// NotePath returns the per-stage human-readable note file location.
func (r *Run) NotePath(stage StageID) string {
	return filepath.Join(r.NotesRoot, string(stage)+".md")
}

// ReportPath is where the final report body lands.
func (r *Run) ReportPath() string {
	return filepath.Join(r.NotesRoot, "report.md")
}
