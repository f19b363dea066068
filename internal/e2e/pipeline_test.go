//go:build e2e

// Package e2e exercises the whole pipeline end to end against a scripted
// generator: full runs, idempotent reruns, interruption and resume, and
// stage selection semantics.
package e2e

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dusk-indust/chronicle/internal/cache"
	"github.com/dusk-indust/chronicle/internal/config"
	"github.com/dusk-indust/chronicle/internal/genai"
	"github.com/dusk-indust/chronicle/internal/pipeline"
	"github.com/dusk-indust/chronicle/internal/templatedata"
	"github.com/dusk-indust/chronicle/internal/workflow"
)

// world is one persistent run environment: archive, notes, and cache
// directories that survive across invocations within a test.
type world struct {
	archiveDir string
	notesDir   string
	cacheDir   string
	cfg        config.Config
	topic      string
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{
		archiveDir: t.TempDir(),
		notesDir:   t.TempDir(),
		cacheDir:   t.TempDir(),
		topic:      "adoption of the new routing layer",
		cfg: config.Config{
			Models: config.Models{
				Scout: "scout-m", Planner: "plan-m", Evidence: "evid-m",
				Writer: "writer-m", Critic: "critic-m",
			},
			Budgets:      config.Budgets{MaxInputChars: 400000},
			Quality:      config.Quality{Strategy: config.StrategyBestOf, Iterations: 1, Candidates: 2},
			Language:     "en",
			Depth:        config.DepthStandard,
			OutputFormat: "markdown",
		},
	}

	require.NoError(t, os.MkdirAll(filepath.Join(w.archiveDir, "sources"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(w.archiveDir, "transcripts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(w.archiveDir, "sources", "benchmark.md"),
		[]byte("# Benchmark\n\nRouting latency dropped 40% after the rollout."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(w.archiveDir, "sources", "review.md"),
		[]byte("# Review\n\nThe benchmark excluded the failover path."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(w.archiveDir, "transcripts", "standup.txt"),
		[]byte("We saw the latency win, but failover still worries me."), 0o644))
	return w
}

// invoke runs the pipeline once over the world, reusing its directories.
func (w *world) invoke(t *testing.T, gen genai.Generator, include []pipeline.StageID, force, resume bool) error {
	t.Helper()

	template, err := templatedata.Load(templatedata.DefaultName)
	require.NoError(t, err)

	run, err := pipeline.NewRun(w.topic, w.archiveDir, w.notesDir, w.cfg, template)
	require.NoError(t, err)
	run.Force = force

	store, err := cache.NewStore(w.cacheDir)
	require.NoError(t, err)

	recorder, err := workflow.NewRecorder(w.notesDir, run.ID, pipeline.StageNames(pipeline.DeclarationOrder))
	require.NoError(t, err)

	plan, err := pipeline.NewScheduler().Resolve(include, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rt := pipeline.NewRuntime(run, plan, gen, store, recorder, pipeline.NewProgressReporter(), zap.NewNop())
	rt.Resume = resume
	return rt.ExecutePlan(ctx)
}

func (w *world) record(t *testing.T) *workflow.Record {
	t.Helper()
	rec, err := workflow.LoadRecord(w.notesDir)
	require.NoError(t, err)
	return rec
}

// report body conformant to the research-report template.
func fullReport(marker string) string {
	var b strings.Builder
	for _, h := range []string{"Executive Summary", "Background", "Findings", "Risks and Gaps", "Critical Perspective", "Conclusion"} {
		b.WriteString("# " + h + "\n\n")
		b.WriteString(marker + " section content with enough substance to matter. ")
		b.WriteString(strings.Repeat("evidence-grounded prose ", 4))
		b.WriteString("\n\n")
	}
	return b.String()
}

// scriptGen answers every role deterministically and counts calls.
type scriptGen struct {
	calls int
	fail  func(role genai.Role, call int) error
}

func (g *scriptGen) gen() genai.Func {
	return func(_ context.Context, req genai.Request) (*genai.Response, error) {
		g.calls++
		if g.fail != nil {
			if err := g.fail(req.Role, g.calls); err != nil {
				return nil, err
			}
		}
		switch req.Role {
		case genai.RoleScout:
			return &genai.Response{Text: "benchmark (primary), review (critical), standup transcript"}, nil
		case genai.RolePlanner:
			return &genai.Response{Text: "lead with the latency result, then the failover caveat"}, nil
		case genai.RoleEvidence:
			return &genai.Response{Text: strings.Join([]string{
				"CLAIM [S3] (sources/benchmark.md) latency dropped 40% :: Routing latency dropped 40%",
				"CLAIM [S2] (sources/review.md) benchmark excluded failover :: excluded the failover path",
				"CLAIM [S1] (transcripts/standup.txt) failover remains a concern :: failover still worries me",
			}, "\n")}, nil
		case genai.RoleWriter:
			return &genai.Response{Text: fullReport("DRAFT")}, nil
		case genai.RoleCritic:
			return &genai.Response{Text: "SUPPORT: 7\nSTRUCTURE: 8\nCOHERENCE: 7"}, nil
		default:
			return nil, errors.New("unknown role")
		}
	}
}

func TestFullRunProducesReport(t *testing.T) {
	w := newWorld(t)
	sg := &scriptGen{}

	require.NoError(t, w.invoke(t, sg.gen(), nil, false, false))

	report, err := os.ReadFile(filepath.Join(w.notesDir, "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "# Risks and Gaps")

	rec := w.record(t)
	for _, id := range pipeline.DefaultSelection {
		assert.Equal(t, workflow.StatusRan, rec.LastStatus(string(id)), string(id))
	}
	assert.FileExists(t, filepath.Join(w.notesDir, "run.json"))
	assert.FileExists(t, filepath.Join(w.notesDir, "workflow.md"))
	assert.FileExists(t, filepath.Join(w.notesDir, "quality_log.jsonl"))
}

func TestRerunIsFullyCached(t *testing.T) {
	w := newWorld(t)
	sg := &scriptGen{}

	require.NoError(t, w.invoke(t, sg.gen(), nil, false, false))
	firstCalls := sg.calls

	require.NoError(t, w.invoke(t, sg.gen(), nil, false, false))
	assert.Equal(t, firstCalls, sg.calls, "identical rerun must issue zero generation calls")

	rec := w.record(t)
	for _, id := range pipeline.DefaultSelection {
		assert.Equal(t, workflow.StatusCached, rec.LastStatus(string(id)), string(id))
	}
}

func TestArchiveEditInvalidatesDownstream(t *testing.T) {
	w := newWorld(t)
	sg := &scriptGen{}
	require.NoError(t, w.invoke(t, sg.gen(), nil, false, false))
	firstCalls := sg.calls

	require.NoError(t, os.WriteFile(filepath.Join(w.archiveDir, "sources", "benchmark.md"),
		[]byte("# Benchmark\n\nRouting latency dropped 60% after re-measurement."), 0o644))

	require.NoError(t, w.invoke(t, sg.gen(), nil, false, false))
	assert.Greater(t, sg.calls, firstCalls, "changed source must regenerate")
	assert.Equal(t, workflow.StatusRan, w.record(t).LastStatus("scout"))
}

func TestInterruptedRunResumes(t *testing.T) {
	w := newWorld(t)

	// First invocation dies at the writer stage.
	failing := &scriptGen{fail: func(role genai.Role, _ int) error {
		if role == genai.RoleWriter {
			return errors.New("connection reset")
		}
		return nil
	}}
	err := w.invoke(t, failing.gen(), nil, false, false)
	require.Error(t, err)
	se, ok := pipeline.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, pipeline.StageWriter, se.Stage)
	assert.Equal(t, pipeline.KindCapabilityFailure, se.Kind)

	rec := w.record(t)
	assert.Equal(t, workflow.StatusRan, rec.LastStatus("evidence"))
	assert.Equal(t, workflow.StatusError, rec.LastStatus("writer"))

	// Resume reuses everything before the writer.
	healthy := &scriptGen{}
	require.NoError(t, w.invoke(t, healthy.gen(), nil, false, true))

	rec = w.record(t)
	assert.Equal(t, workflow.StatusSkipped, rec.LastStatus("scout"))
	assert.Equal(t, workflow.StatusSkipped, rec.LastStatus("evidence"))
	assert.Equal(t, workflow.StatusRan, rec.LastStatus("writer"))
	assert.FileExists(t, filepath.Join(w.notesDir, "report.md"))
}

func TestStageSelectionClosure(t *testing.T) {
	w := newWorld(t)
	sg := &scriptGen{}

	include := []pipeline.StageID{pipeline.StageScout, pipeline.StageEvidence, pipeline.StageWriter}
	require.NoError(t, w.invoke(t, sg.gen(), include, false, false))

	rec := w.record(t)
	assert.Equal(t, workflow.StatusRan, rec.LastStatus("scout"))
	assert.Equal(t, workflow.StatusRan, rec.LastStatus("evidence"))
	assert.Equal(t, workflow.StatusRan, rec.LastStatus("writer"))
	assert.Equal(t, workflow.StatusDisabled, rec.LastStatus("plan"))
	assert.Equal(t, workflow.StatusDisabled, rec.LastStatus("plan_check"))
	assert.Equal(t, workflow.StatusDisabled, rec.LastStatus("quality"))
}

func TestForceSupersedesCachedArtifacts(t *testing.T) {
	w := newWorld(t)
	sg := &scriptGen{}
	require.NoError(t, w.invoke(t, sg.gen(), nil, false, false))
	firstCalls := sg.calls

	require.NoError(t, w.invoke(t, sg.gen(), nil, true, false))
	assert.Equal(t, firstCalls*2, sg.calls, "force must re-run every stage")
	assert.Equal(t, workflow.StatusRan, w.record(t).LastStatus("quality"))
}
