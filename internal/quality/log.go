package quality

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EvalEntry is one line in quality_log.jsonl: a critique, a revision
// decision, or a rubric score for one candidate.
type EvalEntry struct {
	At          time.Time `json:"at"`
	Iteration   int       `json:"iteration,omitempty"`
	CandidateID string    `json:"candidateId"`
	Phase       string    `json:"phase"`
	Score       float64   `json:"score,omitempty"`
	Text        string    `json:"text,omitempty"`
}

// PairEntry is one line in pairwise_log.jsonl: a single bracket comparison
// or the merge fallback decision.
type PairEntry struct {
	At       time.Time `json:"at"`
	Round    int       `json:"round"`
	AID      string    `json:"a"`
	BID      string    `json:"b"`
	WinnerID string    `json:"winner,omitempty"`
	Outcome  string    `json:"outcome"`
}

type jsonlFile struct {
	mu   sync.Mutex
	path string
}

func (f *jsonlFile) append(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := fh.Write(append(line, '\n')); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// EvalLogger appends evaluation entries to quality_log.jsonl under dir.
type EvalLogger struct{ f jsonlFile }

func NewEvalLogger(dir string) (*EvalLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &EvalLogger{f: jsonlFile{path: filepath.Join(dir, "quality_log.jsonl")}}, nil
}

func (l *EvalLogger) Append(e EvalEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return l.f.append(e)
}

// PairLogger appends bracket entries to pairwise_log.jsonl under dir.
type PairLogger struct{ f jsonlFile }

func NewPairLogger(dir string) (*PairLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &PairLogger{f: jsonlFile{path: filepath.Join(dir, "pairwise_log.jsonl")}}, nil
}

func (l *PairLogger) Append(e PairEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return l.f.append(e)
}
