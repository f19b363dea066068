package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/chronicle/internal/archive"
	"github.com/dusk-indust/chronicle/internal/cache"
	"github.com/dusk-indust/chronicle/internal/fingerprint"
	"github.com/dusk-indust/chronicle/internal/genai"
	"github.com/dusk-indust/chronicle/internal/packer"
	"github.com/dusk-indust/chronicle/internal/quality"
	"github.com/dusk-indust/chronicle/internal/retry"
	"github.com/dusk-indust/chronicle/internal/tmpl"
	"github.com/dusk-indust/chronicle/internal/workflow"
)

// capabilityTries bounds transient-failure retries per generation call.
const capabilityTries = 3

// errRunBudgetExhausted halts the run when cumulative prompt characters
// exceed the configured run budget.
var errRunBudgetExhausted = errors.New("run budget exhausted")

// Runtime executes a resolved Plan stage by stage. Stages run strictly
// sequentially; the only concurrency underneath is archive I/O.
type Runtime struct {
	run      *Run
	plan     *Plan
	gen      genai.Generator
	store    *cache.Store
	recorder *workflow.Recorder
	progress *ProgressReporter
	logger   *zap.Logger

	// Resume reuses terminal-success stages from the prior workflow record
	// instead of re-resolving their fingerprints.
	Resume bool

	tree      *archive.Tree
	artifacts map[StageID][]byte
	prior     workflow.Record

	genCalls  int64
	usedChars int
	timings   []StageTiming
}

// NewRuntime wires a Runtime. The recorder must have been created for this
// run's notes root so resume sees prior transitions.
func NewRuntime(run *Run, plan *Plan, gen genai.Generator, store *cache.Store, recorder *workflow.Recorder, progress *ProgressReporter, logger *zap.Logger) *Runtime {
	return &Runtime{
		run:       run,
		plan:      plan,
		gen:       gen,
		store:     store,
		recorder:  recorder,
		progress:  progress,
		logger:    logger,
		artifacts: make(map[StageID][]byte),
		prior:     recorder.Snapshot(),
	}
}

// GenCalls reports how many generation calls the run issued.
func (rt *Runtime) GenCalls() int64 { return rt.genCalls }

// ExecutePlan runs every enabled stage in order, records disabled stages,
// and writes the run metadata record. It stops at the first stage failure;
// the failing stage's error transition is recorded before returning so the
// run stays resumable.
func (rt *Runtime) ExecutePlan(ctx context.Context) error {
	tree, err := archive.Load(ctx, rt.run.ArchiveRoot)
	if err != nil {
		return fmt.Errorf("pipeline: load archive: %w", err)
	}
	rt.tree = tree
	rt.logger.Info("archive loaded",
		zap.Int("sources", len(tree.Sources)),
		zap.String("plan", rt.plan.Describe()))

	for _, id := range rt.plan.Disabled {
		if err := rt.recorder.Record(string(id), workflow.StatusDisabled, "not selected"); err != nil {
			return err
		}
	}

	defer rt.writeMetadata()

	for _, id := range rt.plan.Ordered {
		if err := rt.runStage(ctx, id); err != nil {
			se, ok := AsStageError(err)
			if !ok {
				se = &StageError{Stage: id, Kind: KindCapabilityFailure, Err: err}
			}
			rt.progress.Emit(ProgressEvent{Stage: id, Status: ProgressFailed, Message: se.Err.Error()})
			if rerr := rt.recorder.Record(string(id), workflow.StatusError, fmt.Sprintf("%s: %v", se.Kind, se.Err)); rerr != nil {
				rt.logger.Error("record error transition", zap.Error(rerr))
			}
			return se
		}
	}

	return nil
}

func (rt *Runtime) writeMetadata() {
	meta := Metadata{
		RunID:        rt.run.ID,
		Topic:        rt.run.Topic,
		Models:       rt.run.Config.Models,
		Language:     rt.run.Config.Language,
		Template:     rt.run.Template.Name,
		Depth:        string(rt.run.Config.Depth),
		OutputFormat: rt.run.Config.OutputFormat,
		StartedAt:    rt.run.StartedAt,
		FinishedAt:   time.Now().UTC(),
		GenCalls:     rt.genCalls,
		Timings:      rt.timings,
	}
	if err := rt.run.WriteMetadata(meta); err != nil {
		rt.logger.Error("write run metadata", zap.Error(err))
	}
}

// runStage resolves one stage: resume reuse, then fingerprint lookup, then
// generation, then publication.
func (rt *Runtime) runStage(ctx context.Context, id StageID) error {
	start := time.Now()
	rt.progress.Emit(ProgressEvent{Stage: id, Status: ProgressWorking})

	record := func(status workflow.Status, detail string) error {
		rt.timings = append(rt.timings, StageTiming{
			Stage:      string(id),
			Status:     string(status),
			DurationMS: time.Since(start).Milliseconds(),
		})
		return rt.recorder.Record(string(id), status, detail)
	}

	if rt.Resume && !rt.run.Force && rt.prior.LastStatus(string(id)).TerminalSuccess() {
		if data, err := os.ReadFile(rt.run.NotePath(id)); err == nil {
			rt.artifacts[id] = data
			rt.progress.Emit(ProgressEvent{Stage: id, Status: ProgressCached, Message: "reused"})
			return record(workflow.StatusSkipped, "reused from prior run")
		}
		// The record says success but the artifact is gone; fall through
		// and rebuild.
		rt.logger.Warn("prior artifact missing, re-running stage", zap.String("stage", string(id)))
	}

	inputs, err := rt.fingerprintInputs(id)
	if err != nil {
		return &StageError{Stage: id, Kind: KindDependencyUnmet, Err: err}
	}
	key := fingerprint.New(string(id), stageVersions[id], inputs)

	if !rt.run.Force {
		entry, err := rt.store.Get(string(id), key)
		switch {
		case err == nil:
			rt.artifacts[id] = entry.Content
			if werr := rt.writeNote(id, entry.Content); werr != nil {
				return werr
			}
			rt.progress.Emit(ProgressEvent{Stage: id, Status: ProgressCached})
			return record(workflow.StatusCached, rt.detailFor(id, "fingerprint hit"))
		case !errors.Is(err, cache.ErrMiss):
			return fmt.Errorf("pipeline: cache lookup %s: %w", id, err)
		}
	}

	content, err := rt.executeStage(ctx, id)
	if err != nil {
		return err
	}

	if rt.run.Force {
		if _, err := rt.store.Supersede(string(id), key, content); err != nil {
			return fmt.Errorf("pipeline: supersede %s: %w", id, err)
		}
	} else {
		if _, err := rt.store.Put(string(id), key, content); err != nil {
			return fmt.Errorf("pipeline: publish %s: %w", id, err)
		}
	}

	rt.artifacts[id] = content
	if err := rt.writeNote(id, content); err != nil {
		return err
	}

	rt.progress.Emit(ProgressEvent{Stage: id, Status: ProgressComplete})
	return record(workflow.StatusRan, rt.detailFor(id, "generated"))
}

// detailFor annotates stages the user never asked for with the stage that
// pulled them in.
func (rt *Runtime) detailFor(id StageID, base string) string {
	if by := rt.plan.RequiredBy[id]; len(by) > 0 {
		return fmt.Sprintf("%s; required by %s", base, strings.Join(StageNames(by), ", "))
	}
	return base
}

func (rt *Runtime) writeNote(id StageID, content []byte) error {
	path := rt.run.NotePath(id)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("pipeline: write note %s: %w", path, err)
	}
	// The last enabled stage of writer/quality owns the final report;
	// publish its artifact under the real name as well, cache hits included.
	final := id == StageQuality ||
		(id == StageWriter && !rt.plan.Enabled(StageQuality))
	if final {
		if err := os.WriteFile(rt.run.ReportPath(), content, 0o644); err != nil {
			return fmt.Errorf("pipeline: write report: %w", err)
		}
	}
	return nil
}

// artifact returns a dependency's output, falling back to the note file
// left by a prior run when the stage was satisfied from cache back then.
func (rt *Runtime) artifact(id StageID) ([]byte, error) {
	if a, ok := rt.artifacts[id]; ok {
		return a, nil
	}
	if data, err := os.ReadFile(rt.run.NotePath(id)); err == nil {
		rt.artifacts[id] = data
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s output unavailable", ErrDependencyUnmet, id)
}

// optionalArtifact returns a side input's output, or "" when the stage is
// not part of the plan. A plan-enabled stage with a missing artifact is
// still an error for the caller requesting it as required.
func (rt *Runtime) optionalArtifact(id StageID) string {
	if !rt.plan.Enabled(id) {
		return ""
	}
	a, err := rt.artifact(id)
	if err != nil {
		return ""
	}
	return string(a)
}

// --- fingerprinting ---

// fingerprintInputs declares, per stage, exactly what its output depends
// on. Anything not listed here must not influence the stage's prompt.
func (rt *Runtime) fingerprintInputs(id StageID) ([]fingerprint.Input, error) {
	cfg := rt.run.Config
	model := cfg.Models.ModelFor(string(roleFor[id]))

	base := fingerprint.ConfigInputs(map[string]string{
		"topic": rt.run.Topic,
		"model": model,
	})

	addArtifact := func(inputs []fingerprint.Input, dep StageID) ([]fingerprint.Input, error) {
		a, err := rt.artifact(dep)
		if err != nil {
			return nil, err
		}
		return append(inputs, fingerprint.Input{Name: "artifact:" + string(dep), Digest: archive.HashBytes(a)}), nil
	}
	addOptional := func(inputs []fingerprint.Input, dep StageID) []fingerprint.Input {
		if a := rt.optionalArtifact(dep); a != "" {
			inputs = append(inputs, fingerprint.Input{Name: "artifact:" + string(dep), Digest: archive.HashBytes([]byte(a))})
		}
		return inputs
	}

	switch id {
	case StageScout:
		return append(base, rt.archiveInputs()...), nil

	case StagePlan:
		inputs, err := addArtifact(base, StageScout)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, fingerprint.ConfigInputs(map[string]string{
			"language": cfg.Language,
			"depth":    string(cfg.Depth),
			"template": rt.templateDigest(),
		})...)
		return inputs, nil

	case StageAlignment:
		return addArtifact(base, StageScout)

	case StageTemplateAdjust:
		return addArtifact(base, StagePlan)

	case StageEvidence:
		inputs, err := addArtifact(base, StageScout)
		if err != nil {
			return nil, err
		}
		inputs = addOptional(inputs, StagePlan)
		inputs = addOptional(inputs, StageTemplateAdjust)
		inputs = append(inputs, rt.archiveInputs()...)
		inputs = append(inputs, fingerprint.ConfigInputs(map[string]string{
			"depth":           string(cfg.Depth),
			"max_input_chars": strconv.Itoa(cfg.Budgets.MaxInputChars),
		})...)
		return inputs, nil

	case StagePlanCheck:
		inputs, err := addArtifact(base, StagePlan)
		if err != nil {
			return nil, err
		}
		return addArtifact(inputs, StageEvidence)

	case StageWriter:
		inputs, err := addArtifact(base, StageEvidence)
		if err != nil {
			return nil, err
		}
		inputs = addOptional(inputs, StagePlan)
		inputs = addOptional(inputs, StagePlanCheck)
		inputs = addOptional(inputs, StageTemplateAdjust)
		inputs = append(inputs, fingerprint.ConfigInputs(map[string]string{
			"language":        cfg.Language,
			"format":          cfg.OutputFormat,
			"template":        rt.templateDigest(),
			"depth":           string(cfg.Depth),
			"max_input_chars": strconv.Itoa(cfg.Budgets.MaxInputChars),
		})...)
		return inputs, nil

	case StageQuality:
		inputs, err := addArtifact(base, StageWriter)
		if err != nil {
			return nil, err
		}
		// Alternative candidates repack the evidence pool, so the quality
		// key covers everything their prompts read, not just the winner's
		// upstream draft.
		inputs, err = addArtifact(inputs, StageEvidence)
		if err != nil {
			return nil, err
		}
		inputs = addOptional(inputs, StagePlan)
		inputs = addOptional(inputs, StagePlanCheck)
		inputs = addOptional(inputs, StageTemplateAdjust)
		inputs = append(inputs, fingerprint.ConfigInputs(map[string]string{
			"strategy":        string(cfg.Quality.Strategy),
			"iterations":      strconv.Itoa(cfg.Quality.Iterations),
			"candidates":      strconv.Itoa(cfg.Quality.Candidates),
			"writer_model":    cfg.Models.Writer,
			"template":        rt.templateDigest(),
			"depth":           string(cfg.Depth),
			"max_input_chars": strconv.Itoa(cfg.Budgets.MaxInputChars),
		})...)
		return inputs, nil

	default:
		return nil, fmt.Errorf("pipeline: no fingerprint inputs declared for %s", id)
	}
}

func (rt *Runtime) archiveInputs() []fingerprint.Input {
	pairs := rt.tree.ContentHashes()
	inputs := make([]fingerprint.Input, 0, len(pairs))
	for _, p := range pairs {
		path, digest, _ := strings.Cut(p, "=")
		inputs = append(inputs, fingerprint.Input{Name: "src:" + path, Digest: digest})
	}
	return inputs
}

func (rt *Runtime) templateDigest() string {
	var b strings.Builder
	for _, h := range rt.run.Template.RequiredHeadings() {
		b.WriteString(h)
		b.WriteString("\x00")
		b.WriteString(rt.run.Template.GuidanceFor(h))
		b.WriteString("\x00")
	}
	return archive.HashBytes([]byte(b.String()))
}

// --- generation ---

// call issues one generation request with budget enforcement and bounded
// retries. genai.ErrInputTooLarge passes through untouched so callers can
// condense and retry; every other failure exhausts the retry budget first.
func (rt *Runtime) call(ctx context.Context, id StageID, prompt string) (string, error) {
	if max := rt.run.Config.Budgets.MaxInputChars; max > 0 && len(prompt) > max {
		return "", fmt.Errorf("prompt is %d chars, budget %d: %w", len(prompt), max, genai.ErrInputTooLarge)
	}
	if err := rt.charge(len(prompt)); err != nil {
		return "", err
	}

	model := rt.run.Config.Models.ModelFor(string(roleFor[id]))
	var text string
	err := retry.Attempt(ctx, capabilityTries, 500*time.Millisecond, func(try int) error {
		if try > 1 {
			rt.logger.Warn("retrying generation", zap.String("stage", string(id)), zap.Int("try", try))
		}
		sink := genai.NewLogSink(rt.logger, roleFor[id])
		resp, err := rt.gen.Generate(ctx, genai.Request{
			Role:   roleFor[id],
			Model:  model,
			Prompt: prompt,
			Stream: sink,
		})
		sink.Flush()
		if err != nil {
			if errors.Is(err, genai.ErrInputTooLarge) {
				return retry.Stop(err)
			}
			return err
		}
		text = resp.Text
		return nil
	})
	if err != nil {
		return "", err
	}
	rt.genCalls++
	return text, nil
}

// charge counts prompt characters against the cumulative run budget.
func (rt *Runtime) charge(chars int) error {
	rt.usedChars += chars
	if limit := rt.run.Config.Budgets.RunChars; limit > 0 && rt.usedChars > limit {
		return fmt.Errorf("%w: %d of %d chars", errRunBudgetExhausted, rt.usedChars, limit)
	}
	return nil
}

// countingGen exposes the runtime's budget and call accounting to
// collaborators that drive the generator themselves (the quality loop).
func (rt *Runtime) countingGen() genai.Func {
	return func(ctx context.Context, req genai.Request) (*genai.Response, error) {
		if err := rt.charge(len(req.Prompt)); err != nil {
			return nil, err
		}
		resp, err := rt.gen.Generate(ctx, req)
		if err == nil {
			rt.genCalls++
		}
		return resp, err
	}
}

// stageErr classifies a generation failure into the stage error taxonomy.
func stageErr(id StageID, err error) *StageError {
	kind := KindCapabilityFailure
	switch {
	case errors.Is(err, genai.ErrInputTooLarge), errors.Is(err, errRunBudgetExhausted):
		kind = KindInputOverflow
	case errors.Is(err, ErrDependencyUnmet):
		kind = KindDependencyUnmet
	}
	return &StageError{Stage: id, Kind: kind, Err: err}
}

// executeStage produces a stage's artifact on a cache miss.
func (rt *Runtime) executeStage(ctx context.Context, id StageID) ([]byte, error) {
	switch id {
	case StageScout:
		return rt.execScout(ctx)
	case StagePlan:
		return rt.execWithUpstream(ctx, id, StageScout, func(up string) string {
			return planPrompt(rt.run, up)
		})
	case StageAlignment:
		return rt.execWithUpstream(ctx, id, StageScout, func(up string) string {
			return alignmentPrompt(rt.run, up)
		})
	case StageTemplateAdjust:
		return rt.execWithUpstream(ctx, id, StagePlan, func(up string) string {
			return templateAdjustPrompt(rt.run, up)
		})
	case StageEvidence:
		return rt.execEvidence(ctx)
	case StagePlanCheck:
		return rt.execPlanCheck(ctx)
	case StageWriter:
		return rt.execWriter(ctx)
	case StageQuality:
		return rt.execQuality(ctx)
	default:
		return nil, &StageError{Stage: id, Kind: KindCapabilityFailure, Err: fmt.Errorf("no executor for stage %s", id)}
	}
}

func (rt *Runtime) execScout(ctx context.Context) ([]byte, error) {
	text, err := rt.call(ctx, StageScout, scoutPrompt(rt.run, rt.tree))
	if err != nil {
		return nil, stageErr(StageScout, err)
	}
	return []byte(text), nil
}

// execWithUpstream covers the simple single-input stages.
func (rt *Runtime) execWithUpstream(ctx context.Context, id, upstream StageID, build func(string) string) ([]byte, error) {
	up, err := rt.artifact(upstream)
	if err != nil {
		return nil, stageErr(id, err)
	}
	text, err := rt.call(ctx, id, build(string(up)))
	if err != nil {
		return nil, stageErr(id, err)
	}
	return []byte(text), nil
}

// execEvidence sends the full source bodies; on overflow it retries once
// with each source truncated, then gives up.
func (rt *Runtime) execEvidence(ctx context.Context) ([]byte, error) {
	scout, err := rt.artifact(StageScout)
	if err != nil {
		return nil, stageErr(StageEvidence, err)
	}
	planNotes := rt.optionalArtifact(StagePlan)
	adjustNotes := rt.optionalArtifact(StageTemplateAdjust)

	text, err := rt.call(ctx, StageEvidence, evidencePrompt(rt.run, rt.tree, string(scout), planNotes, adjustNotes))
	if errors.Is(err, genai.ErrInputTooLarge) {
		rt.logger.Info("evidence prompt over budget, retrying with truncated sources")
		condensed := rt.condensedTree()
		text, err = rt.call(ctx, StageEvidence, evidencePrompt(rt.run, condensed, string(scout), planNotes, adjustNotes))
	}
	if err != nil {
		return nil, stageErr(StageEvidence, err)
	}
	return []byte(text), nil
}

// condensedTree halves every source body for the overflow retry. The cap
// divides the input budget evenly so the retry is deterministic.
func (rt *Runtime) condensedTree() *archive.Tree {
	perSource := sourcePreviewChars * 4
	if n := len(rt.tree.Sources); n > 0 && rt.run.Config.Budgets.MaxInputChars > 0 {
		if fair := rt.run.Config.Budgets.MaxInputChars / (2 * n); fair < perSource {
			perSource = fair
		}
	}
	out := &archive.Tree{Sources: make([]archive.Source, len(rt.tree.Sources))}
	copy(out.Sources, rt.tree.Sources)
	for i := range out.Sources {
		out.Sources[i].Content = preview(out.Sources[i].Content, perSource)
	}
	return out
}

func (rt *Runtime) execPlanCheck(ctx context.Context) ([]byte, error) {
	planNotes, err := rt.artifact(StagePlan)
	if err != nil {
		return nil, stageErr(StagePlanCheck, err)
	}
	evidence, err := rt.artifact(StageEvidence)
	if err != nil {
		return nil, stageErr(StagePlanCheck, err)
	}
	text, err := rt.call(ctx, StagePlanCheck, planCheckPrompt(rt.run, string(planNotes), string(evidence)))
	if err != nil {
		return nil, stageErr(StagePlanCheck, err)
	}
	return []byte(text), nil
}

// execWriter drafts the report under the evidence budget, with one
// condensation retry on overflow and a bounded structural repair loop:
// append the missing sections, then regenerate once, then fail.
func (rt *Runtime) execWriter(ctx context.Context) ([]byte, error) {
	evidence, err := rt.artifact(StageEvidence)
	if err != nil {
		return nil, stageErr(StageWriter, err)
	}
	planNotes := rt.optionalArtifact(StagePlan)
	checkNotes := rt.optionalArtifact(StagePlanCheck)
	adjustNotes := rt.optionalArtifact(StageTemplateAdjust)

	cfg := rt.run.Config
	pool := evidencePool(rt.tree, string(evidence))
	budget := packer.Budget(cfg.Budgets.MaxInputChars/2, cfg.Depth)
	payload := packer.Pack(pool, budget, cfg.Depth)
	if len(payload.Dropped) > 0 {
		rt.logger.Info("evidence dropped for space", zap.Int("dropped", len(payload.Dropped)))
	}

	draft := func(p *packer.Payload) (string, error) {
		return rt.call(ctx, StageWriter, writerPrompt(rt.run, p, planNotes, checkNotes, adjustNotes))
	}

	body, err := draft(payload)
	if errors.Is(err, genai.ErrInputTooLarge) {
		rt.logger.Info("writer prompt over budget, condensing evidence payload")
		payload = packer.Condense(payload, budget/2)
		body, err = draft(payload)
	}
	if err != nil {
		return nil, stageErr(StageWriter, err)
	}

	body, err = rt.repair(ctx, body, func() (string, error) { return draft(payload) })
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

// repair enforces structural conformance on a writer draft. Missing
// sections get one append pass; any remaining defect gets one full
// regeneration; after that the stage fails with the validation detail.
func (rt *Runtime) repair(ctx context.Context, body string, regenerate func() (string, error)) (string, error) {
	res := tmpl.Validate(body, rt.run.Template)
	if res.OK() {
		return body, nil
	}

	if res.Kind == tmpl.MissingSections {
		rt.logger.Info("draft missing sections, appending", zap.Strings("missing", res.Missing))
		appended, err := rt.call(ctx, StageWriter, repairAppendPrompt(rt.run, body, res.Missing))
		if err != nil {
			return "", stageErr(StageWriter, err)
		}
		body = strings.TrimRight(body, "\n") + "\n\n" + strings.TrimSpace(appended) + "\n"
		if res = tmpl.Validate(body, rt.run.Template); res.OK() {
			return body, nil
		}
	}

	rt.logger.Info("draft non-conformant, regenerating", zap.String("result", res.Kind.String()))
	body, err := regenerate()
	if err != nil {
		return "", stageErr(StageWriter, err)
	}
	if res = tmpl.Validate(body, rt.run.Template); res.OK() {
		return body, nil
	}

	detail := res.Kind.String()
	if len(res.Missing) > 0 {
		detail += ": missing " + strings.Join(res.Missing, ", ")
	}
	if res.Matched != "" {
		detail += ": matched " + strconv.Quote(res.Matched)
	}
	return "", &StageError{Stage: StageWriter, Kind: KindStructuralNonconformance, Err: errors.New(detail)}
}

// execQuality builds the candidate set (the writer artifact plus fresh
// alternative drafts), refines it, and publishes the survivor as the final
// report.
func (rt *Runtime) execQuality(ctx context.Context) ([]byte, error) {
	writerDraft, err := rt.artifact(StageWriter)
	if err != nil {
		return nil, stageErr(StageQuality, err)
	}

	cfg := rt.run.Config
	candidates := []quality.Candidate{quality.NewCandidate(0, string(writerDraft))}
	for i := 1; i < cfg.Quality.Candidates; i++ {
		alt, err := rt.alternativeDraft(ctx, i)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, quality.NewCandidate(i, alt))
	}

	loop, err := quality.NewLoop(rt.countingGen(), cfg.Models.Critic, cfg.Models.Writer,
		rt.run.Template, rt.logger, rt.run.NotesRoot)
	if err != nil {
		return nil, fmt.Errorf("pipeline: quality loop: %w", err)
	}

	final, err := loop.Refine(ctx, candidates, cfg.Quality.Strategy, cfg.Quality.Iterations)
	if err != nil {
		return nil, stageErr(StageQuality, err)
	}

	if res := tmpl.Validate(final.Body, rt.run.Template); !res.OK() {
		return nil, &StageError{Stage: StageQuality, Kind: KindStructuralNonconformance,
			Err: fmt.Errorf("final report %s", res.Kind)}
	}

	return []byte(final.Body), nil
}

// alternativeDraft produces one additional writer candidate with the same
// evidence payload but an explicit instruction to take a different angle,
// so candidates are not near-duplicates.
func (rt *Runtime) alternativeDraft(ctx context.Context, seq int) (string, error) {
	evidence, err := rt.artifact(StageEvidence)
	if err != nil {
		return "", stageErr(StageQuality, err)
	}
	cfg := rt.run.Config
	pool := evidencePool(rt.tree, string(evidence))
	budget := packer.Budget(cfg.Budgets.MaxInputChars/2, cfg.Depth)
	payload := packer.Pack(pool, budget, cfg.Depth)

	prompt := fmt.Sprintf("Alternative draft %d: organize the argument differently from an obvious first draft while keeping every required section.\n\n", seq) +
		writerPrompt(rt.run, payload, rt.optionalArtifact(StagePlan), rt.optionalArtifact(StagePlanCheck), rt.optionalArtifact(StageTemplateAdjust))

	body, err := rt.call(ctx, StageWriter, prompt)
	if errors.Is(err, genai.ErrInputTooLarge) {
		payload = packer.Condense(payload, budget/2)
		body, err = rt.call(ctx, StageWriter, fmt.Sprintf("Alternative draft %d: organize the argument differently from an obvious first draft while keeping every required section.\n\n", seq)+
			writerPrompt(rt.run, payload, rt.optionalArtifact(StagePlan), rt.optionalArtifact(StagePlanCheck), rt.optionalArtifact(StageTemplateAdjust)))
	}
	if err != nil {
		return "", stageErr(StageQuality, err)
	}
	return body, nil
}
