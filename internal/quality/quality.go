// Package quality turns multiple writer candidates into one final report
// via bounded critique/revision iterations and a selectable reduction
// strategy.
package quality

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dusk-indust/chronicle/internal/config"
	"github.com/dusk-indust/chronicle/internal/genai"
	"github.com/dusk-indust/chronicle/internal/retry"
	"github.com/dusk-indust/chronicle/internal/tmpl"
)

// Candidate is one full report draft moving through the loop. Candidates
// are ephemeral: only the final survivor leaves the loop.
type Candidate struct {
	ID   string
	Seq  int // production order; breaks score ties deterministically
	Body string

	Score float64
}

// NewCandidate wraps a draft body.
func NewCandidate(seq int, body string) Candidate {
	return Candidate{ID: uuid.NewString(), Seq: seq, Body: body}
}

// capabilityTries bounds retries for each critic/writer call.
const capabilityTries = 3

// Loop runs the refinement phase.
type Loop struct {
	gen         genai.Generator
	criticModel string
	writerModel string
	template    *tmpl.Template
	logger      *zap.Logger

	evalLog *EvalLogger
	pairLog *PairLogger
}

// NewLoop builds a Loop. notesDir receives the quality and pairwise logs;
// pass "" to disable them (tests).
func NewLoop(gen genai.Generator, criticModel, writerModel string, template *tmpl.Template, logger *zap.Logger, notesDir string) (*Loop, error) {
	l := &Loop{
		gen:         gen,
		criticModel: criticModel,
		writerModel: writerModel,
		template:    template,
		logger:      logger,
	}

	if notesDir != "" {
		var err error
		if l.evalLog, err = NewEvalLogger(notesDir); err != nil {
			return nil, err
		}
		if l.pairLog, err = NewPairLogger(notesDir); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Refine runs the configured iterations of critique+revision over every
// candidate, then reduces them to one final report. The iteration count is
// an explicit bound; there is no convergence loop.
func (l *Loop) Refine(ctx context.Context, candidates []Candidate, strategy config.Strategy, iterations int) (*Candidate, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("quality: no candidates")
	}

	work := append([]Candidate(nil), candidates...)

	for it := 1; it <= iterations; it++ {
		for i := range work {
			if err := l.refineOne(ctx, it, &work[i]); err != nil {
				return nil, err
			}
		}
	}

	switch strategy {
	case config.StrategyBestOf:
		return l.bestOf(ctx, work)
	case config.StrategyPairwise:
		return l.pairwise(ctx, work)
	default:
		return nil, fmt.Errorf("quality: unknown strategy %q", strategy)
	}
}

// refineOne critiques one candidate and rewrites it with the critique
// incorporated.
func (l *Loop) refineOne(ctx context.Context, iteration int, c *Candidate) error {
	critique, err := l.generate(ctx, genai.RoleCritic, l.criticModel, critiquePrompt(c.Body))
	if err != nil {
		return fmt.Errorf("quality: critique iteration %d: %w", iteration, err)
	}
	l.logEval(EvalEntry{Iteration: iteration, CandidateID: c.ID, Phase: "critique", Text: critique})

	revised, err := l.generate(ctx, genai.RoleWriter, l.writerModel, revisePrompt(c.Body, critique))
	if err != nil {
		return fmt.Errorf("quality: revision iteration %d: %w", iteration, err)
	}

	// A revision that breaks structure is worse than no revision.
	if res := tmpl.Validate(revised, l.template); res.OK() {
		c.Body = revised
		l.logEval(EvalEntry{Iteration: iteration, CandidateID: c.ID, Phase: "revision"})
	} else {
		l.logEval(EvalEntry{Iteration: iteration, CandidateID: c.ID, Phase: "revision-rejected", Text: res.Kind.String()})
	}
	return nil
}

// bestOf scores every candidate independently and picks the highest; score
// ties go to the earliest-produced candidate.
func (l *Loop) bestOf(ctx context.Context, candidates []Candidate) (*Candidate, error) {
	for i := range candidates {
		score, err := l.score(ctx, &candidates[i])
		if err != nil {
			return nil, err
		}
		candidates[i].Score = score
		l.logEval(EvalEntry{CandidateID: candidates[i].ID, Phase: "score", Score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Seq < candidates[j].Seq
	})

	winner := candidates[0]
	return &winner, nil
}

// pairwise eliminates the lower-scored of each pair per round. With an odd
// count the unpaired candidate advances automatically. The final two are
// merged by a synthesis pass; a non-conformant merge falls back to best_of
// over the original candidate set.
func (l *Loop) pairwise(ctx context.Context, candidates []Candidate) (*Candidate, error) {
	original := append([]Candidate(nil), candidates...)
	live := append([]Candidate(nil), candidates...)
	round := 0

	for len(live) > 2 {
		round++
		var next []Candidate
		for i := 0; i+1 < len(live); i += 2 {
			winner, err := l.compare(ctx, round, live[i], live[i+1])
			if err != nil {
				return nil, err
			}
			next = append(next, *winner)
		}
		if len(live)%2 == 1 {
			next = append(next, live[len(live)-1]) // bye
		}
		live = next
	}

	if len(live) == 1 {
		winner := live[0]
		return &winner, nil
	}

	merged, err := l.merge(ctx, live[0], live[1])
	if err != nil {
		return nil, err
	}
	if res := tmpl.Validate(merged.Body, l.template); !res.OK() {
		// Never ship a broken merge: fall back to scoring the originals.
		l.logger.Warn("merge non-conformant, falling back to best_of",
			zap.String("result", res.Kind.String()))
		l.logPair(PairEntry{Round: round + 1, AID: live[0].ID, BID: live[1].ID, Outcome: "merge_fallback"})
		return l.bestOf(ctx, original)
	}
	return merged, nil
}

// compare runs one pairwise comparison. An unparseable verdict resolves to
// the earlier-produced candidate so brackets stay deterministic.
func (l *Loop) compare(ctx context.Context, round int, a, b Candidate) (*Candidate, error) {
	verdict, err := l.generate(ctx, genai.RoleCritic, l.criticModel, comparePrompt(a.Body, b.Body))
	if err != nil {
		return nil, fmt.Errorf("quality: pairwise round %d: %w", round, err)
	}

	winner := &a
	outcome := "a"
	switch parseWinner(verdict) {
	case "B":
		winner = &b
		outcome = "b"
	case "A":
	default:
		if b.Seq < a.Seq {
			winner = &b
		}
		outcome = "unparsed"
	}

	l.logPair(PairEntry{Round: round, AID: a.ID, BID: b.ID, WinnerID: winner.ID, Outcome: outcome})
	return winner, nil
}

// merge hands both finalist drafts to the writer role for a reconciled
// single document, so valid content from the losing draft survives.
func (l *Loop) merge(ctx context.Context, a, b Candidate) (*Candidate, error) {
	body, err := l.generate(ctx, genai.RoleWriter, l.writerModel, mergePrompt(a.Body, b.Body, l.template))
	if err != nil {
		return nil, fmt.Errorf("quality: synthesis merge: %w", err)
	}
	seq := a.Seq
	if b.Seq < seq {
		seq = b.Seq
	}
	merged := Candidate{ID: uuid.NewString(), Seq: seq, Body: body}
	return &merged, nil
}

// score asks the critic for the fixed rubric and sums the dimensions.
func (l *Loop) score(ctx context.Context, c *Candidate) (float64, error) {
	text, err := l.generate(ctx, genai.RoleCritic, l.criticModel, scorePrompt(c.Body))
	if err != nil {
		return 0, fmt.Errorf("quality: score candidate %s: %w", c.ID, err)
	}
	return parseRubric(text), nil
}

// generate issues one capability call with bounded retries.
func (l *Loop) generate(ctx context.Context, role genai.Role, model, prompt string) (string, error) {
	var text string
	err := retry.Attempt(ctx, capabilityTries, 500*time.Millisecond, func(try int) error {
		resp, err := l.gen.Generate(ctx, genai.Request{Role: role, Model: model, Prompt: prompt})
		if err != nil {
			return err
		}
		text = resp.Text
		return nil
	})
	return text, err
}

func (l *Loop) logEval(e EvalEntry) {
	if l.evalLog != nil {
		if err := l.evalLog.Append(e); err != nil {
			l.logger.Warn("quality log append failed", zap.Error(err))
		}
	}
}

func (l *Loop) logPair(e PairEntry) {
	if l.pairLog != nil {
		if err := l.pairLog.Append(e); err != nil {
			l.logger.Warn("pairwise log append failed", zap.Error(err))
		}
	}
}

// --- prompts and parsing ---

func critiquePrompt(body string) string {
	return "Critique the report draft below on three dimensions: evidentiary " +
		"support (are claims cited and proportionate to their evidence?), " +
		"structural conformance (are all sections present and substantive?), " +
		"and coherence (does the argument hold together?). Be specific; cite " +
		"section names.\n\n## Draft\n\n" + body
}

func revisePrompt(body, critique string) string {
	return "Revise the report draft to address the critique. Keep every " +
		"section heading exactly as it is; keep citation numbers intact.\n\n" +
		"## Critique\n\n" + critique + "\n\n## Draft\n\n" + body
}

func scorePrompt(body string) string {
	return "Score the report draft on each dimension from 0 to 10. Respond " +
		"with exactly three lines:\nSUPPORT: <n>\nSTRUCTURE: <n>\nCOHERENCE: <n>\n\n" +
		"## Draft\n\n" + body
}

func comparePrompt(a, b string) string {
	return "Two report drafts follow. Decide which is the stronger report " +
		"overall (evidentiary support, structure, coherence). Respond with " +
		"exactly one line: WINNER: A or WINNER: B\n\n## Draft A\n\n" + a +
		"\n\n## Draft B\n\n" + b
}

func mergePrompt(a, b string, t *tmpl.Template) string {
	var sections strings.Builder
	for _, h := range t.RequiredHeadings() {
		sections.WriteString("- " + h + "\n")
	}
	return "Reconcile the two report drafts below into a single report. Take " +
		"the stronger treatment of each section; where the drafts disagree, " +
		"keep the better-evidenced claim and note real contradictions in the " +
		"risks discussion. Use exactly these section headings, in order:\n\n" +
		sections.String() + "\n## Draft A\n\n" + a + "\n\n## Draft B\n\n" + b
}

var (
	winnerRe  = regexp.MustCompile(`(?i)WINNER:\s*([AB])\b`)
	supportRe = regexp.MustCompile(`(?i)SUPPORT:\s*(\d+(?:\.\d+)?)`)
	structRe  = regexp.MustCompile(`(?i)STRUCTURE:\s*(\d+(?:\.\d+)?)`)
	coherRe   = regexp.MustCompile(`(?i)COHERENCE:\s*(\d+(?:\.\d+)?)`)
)

func parseWinner(text string) string {
	if m := winnerRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

// parseRubric sums the three dimensions; an absent dimension contributes
// zero rather than failing the whole evaluation.
func parseRubric(text string) float64 {
	total := 0.0
	for _, re := range []*regexp.Regexp{supportRe, structRe, coherRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				total += v
			}
		}
	}
	return total
}
