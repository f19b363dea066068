// Package workflow records per-stage status transitions for a run. The
// record is append-only with strictly increasing sequence numbers, persisted
// in machine-readable and human-readable form after every transition, and
// is what makes an interrupted run resumable.
package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Status is the recorded state of one stage.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRan      Status = "ran"
	StatusCached   Status = "cached"
	StatusSkipped  Status = "skipped"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
)

// TerminalSuccess reports whether a status counts as completed for resume
// purposes. Error and pending stages are re-run on resume.
func (s Status) TerminalSuccess() bool {
	switch s {
	case StatusRan, StatusCached, StatusSkipped, StatusDisabled:
		return true
	default:
		return false
	}
}

// Transition is one recorded status change.
type Transition struct {
	Seq    int64     `json:"seq"`
	Stage  string    `json:"stage"`
	Status Status    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Record is a persisted snapshot of a run's workflow state.
type Record struct {
	RunID       string       `json:"runId"`
	StageOrder  []string     `json:"stageOrder"`
	Transitions []Transition `json:"transitions"`
}

// LastStatus returns the most recent status recorded for a stage, or
// StatusPending if none exists.
func (r *Record) LastStatus(stage string) Status {
	last := StatusPending
	for _, t := range r.Transitions {
		if t.Stage == stage {
			last = t.Status
		}
	}
	return last
}

// Recorder serializes transitions for one run. All methods are safe for
// concurrent use; sequence numbers never collide or go out of order.
type Recorder struct {
	mu     sync.Mutex
	record Record
	dir    string
}

const (
	recordFile   = "workflow.json"
	readableFile = "workflow.md"
)

// NewRecorder creates a recorder persisting under dir. If a prior record
// for any run exists there it is loaded, so a relaunched run continues the
// sequence instead of restarting it.
func NewRecorder(dir, runID string, stageOrder []string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workflow: create %s: %w", dir, err)
	}

	r := &Recorder{
		dir: dir,
		record: Record{
			RunID:      runID,
			StageOrder: stageOrder,
		},
	}

	path := filepath.Join(dir, recordFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var prior Record
		if err := json.Unmarshal(data, &prior); err != nil {
			return nil, fmt.Errorf("workflow: parse %s: %w", path, err)
		}
		r.record.Transitions = prior.Transitions
		// The stage order of the current invocation wins; prior runs may
		// have used a different selection.
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("workflow: read %s: %w", path, err)
	}

	return r, nil
}

// Record appends a transition and persists both record forms.
func (r *Recorder) Record(stage string, status Status, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := int64(1)
	if n := len(r.record.Transitions); n > 0 {
		seq = r.record.Transitions[n-1].Seq + 1
	}

	r.record.Transitions = append(r.record.Transitions, Transition{
		Seq:    seq,
		Stage:  stage,
		Status: status,
		Detail: detail,
		At:     time.Now().UTC(),
	})

	return r.persist()
}

// Snapshot returns a copy of the current record.
func (r *Recorder) Snapshot() Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.record
	out.Transitions = append([]Transition(nil), r.record.Transitions...)
	out.StageOrder = append([]string(nil), r.record.StageOrder...)
	return out
}

// ResumePoint returns the first stage in declared order whose last recorded
// status is not a terminal success, and false if every stage completed.
func (r *Recorder) ResumePoint() (string, bool) {
	snap := r.Snapshot()
	return ResumePoint(&snap)
}

// ResumePoint is the record-level resume rule, usable on loaded snapshots.
func ResumePoint(record *Record) (string, bool) {
	for _, stage := range record.StageOrder {
		if !record.LastStatus(stage).TerminalSuccess() {
			return stage, true
		}
	}
	return "", false
}

// LoadRecord reads a persisted record from dir.
func LoadRecord(dir string) (*Record, error) {
	path := filepath.Join(dir, recordFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("workflow: parse %s: %w", path, err)
	}
	return &record, nil
}

// persist writes workflow.json and workflow.md. Callers hold r.mu.
func (r *Recorder) persist() error {
	data, err := json.MarshalIndent(r.record, "", "  ")
	if err != nil {
		return fmt.Errorf("workflow: marshal record: %w", err)
	}
	jsonPath := filepath.Join(r.dir, recordFile)
	if err := os.WriteFile(jsonPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("workflow: write %s: %w", jsonPath, err)
	}

	mdPath := filepath.Join(r.dir, readableFile)
	if err := os.WriteFile(mdPath, []byte(r.renderMarkdown()), 0o644); err != nil {
		return fmt.Errorf("workflow: write %s: %w", mdPath, err)
	}
	return nil
}

// renderMarkdown formats the record for human review: final status per
// stage, then the full transition log.
func (r *Recorder) renderMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Workflow — run %s\n\n", r.record.RunID)

	b.WriteString("| Stage | Status | Detail |\n|---|---|---|\n")
	for _, stage := range r.record.StageOrder {
		last := StatusPending
		detail := ""
		for _, t := range r.record.Transitions {
			if t.Stage == stage {
				last = t.Status
				detail = t.Detail
			}
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", stage, last, strings.ReplaceAll(detail, "|", "/"))
	}

	b.WriteString("\n## Transitions\n\n")
	for _, t := range r.record.Transitions {
		fmt.Fprintf(&b, "%4d. %s → %s", t.Seq, t.Stage, t.Status)
		if t.Detail != "" {
			fmt.Fprintf(&b, " (%s)", t.Detail)
		}
		b.WriteString("\n")
	}
	return b.String()
}
