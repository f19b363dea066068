// Package packer selects and condenses evidence so a stage's prompt fits a
// character budget. Payloads are built fresh per consumer: the same pool may
// pack differently for the writer than for the plan check.
package packer

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dusk-indust/chronicle/internal/config"
)

// Item is one evidence excerpt in the pool.
type Item struct {
	// SourcePath identifies the archive source this excerpt came from.
	SourcePath string

	Title string
	URL   string

	// Excerpt is the raw quoted text; Summary is its condensed form.
	Excerpt string
	Summary string

	// ClaimStrength is the evidence stage's 0–3 strength grade for the
	// claim this excerpt supports. Higher packs first.
	ClaimStrength int

	// RetrievedAt orders ties by source recency.
	RetrievedAt time.Time
}

// Dropped records an excluded citation-bearing item so gap reporting stays
// honest: nothing is silently discarded.
type Dropped struct {
	SourcePath string `json:"sourcePath"`
	Title      string `json:"title,omitempty"`
	Reason     string `json:"reason"`
}

// Payload is a packed, ordered evidence selection.
type Payload struct {
	Items   []Item
	Dropped []Dropped

	// Budget is the character budget the payload was packed against.
	Budget int
}

// Budget derives the effective character budget for a depth setting.
// Shallow runs take a harder budget and bias toward summaries; full runs
// widen it and prefer raw excerpts.
func Budget(maxChars int, depth config.Depth) int {
	switch depth {
	case config.DepthBrief:
		return maxChars / 2
	case config.DepthFull:
		return maxChars + maxChars/2
	default:
		return maxChars
	}
}

// Pack selects items from pool into a payload bounded by budget chars.
// Ordering: claim strength descending, then source recency descending, then
// source diversity (a source with fewer packed items wins remaining ties).
func Pack(pool []Item, budget int, depth config.Depth) *Payload {
	ordered := make([]Item, len(pool))
	copy(ordered, pool)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ClaimStrength != ordered[j].ClaimStrength {
			return ordered[i].ClaimStrength > ordered[j].ClaimStrength
		}
		return ordered[i].RetrievedAt.After(ordered[j].RetrievedAt)
	})

	p := &Payload{Budget: budget}
	perSource := make(map[string]int)
	used := 0

	for idx := 0; idx < len(ordered); idx++ {
		// Within the run of items tied on (strength, recency), prefer the
		// source with the fewest packed items.
		pick := idx
		for j := idx + 1; j < len(ordered) && tied(ordered[idx], ordered[j]); j++ {
			if perSource[ordered[j].SourcePath] < perSource[ordered[pick].SourcePath] {
				pick = j
			}
		}
		ordered[idx], ordered[pick] = ordered[pick], ordered[idx]
		item := ordered[idx]

		text := textForDepth(item, depth)
		if used+len(text) > budget {
			// Try the summary before giving up on the item.
			if s := item.Summary; s != "" && used+len(s) <= budget {
				item.Excerpt = ""
				p.Items = append(p.Items, item)
				perSource[item.SourcePath]++
				used += len(s)
				continue
			}
			p.Dropped = append(p.Dropped, Dropped{
				SourcePath: item.SourcePath,
				Title:      item.Title,
				Reason:     "over budget",
			})
			continue
		}

		if depth == config.DepthBrief && item.Summary != "" {
			item.Excerpt = ""
		}
		p.Items = append(p.Items, item)
		perSource[item.SourcePath]++
		used += len(text)
	}

	return p
}

func tied(a, b Item) bool {
	return a.ClaimStrength == b.ClaimStrength && a.RetrievedAt.Equal(b.RetrievedAt)
}

// textForDepth returns the text Pack will charge against the budget.
func textForDepth(item Item, depth config.Depth) string {
	if depth == config.DepthBrief && item.Summary != "" {
		return item.Summary
	}
	if item.Excerpt != "" {
		return item.Excerpt
	}
	return item.Summary
}

// condenseExcerptChars caps each item's text after a Condense pass.
const condenseExcerptChars = 400

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Condense repacks a payload against a tighter budget: every item falls
// back to its summary (or a truncated excerpt), and lowest-strength items
// are dropped until the payload fits. The drop ledger carries over and
// grows; it never shrinks.
func Condense(p *Payload, tighterBudget int) *Payload {
	out := &Payload{
		Budget:  tighterBudget,
		Dropped: append([]Dropped(nil), p.Dropped...),
	}

	// Shrink every item first.
	shrunk := make([]Item, 0, len(p.Items))
	for _, item := range p.Items {
		if item.Summary != "" {
			item.Excerpt = ""
		} else if len(item.Excerpt) > condenseExcerptChars {
			item.Excerpt = truncate(item.Excerpt, condenseExcerptChars) + "…"
		}
		shrunk = append(shrunk, item)
	}

	// Keep strongest-first order; drop from the weak end until it fits.
	sort.SliceStable(shrunk, func(i, j int) bool {
		return shrunk[i].ClaimStrength > shrunk[j].ClaimStrength
	})

	used := 0
	for _, item := range shrunk {
		text := item.Summary
		if text == "" {
			text = item.Excerpt
		}
		if used+len(text) > tighterBudget {
			out.Dropped = append(out.Dropped, Dropped{
				SourcePath: item.SourcePath,
				Title:      item.Title,
				Reason:     "condensed out",
			})
			continue
		}
		out.Items = append(out.Items, item)
		used += len(text)
	}

	return out
}

// Render formats the payload as prompt text with numbered citations.
func (p *Payload) Render() string {
	var b strings.Builder
	b.WriteString("## Evidence\n\n")
	for i, item := range p.Items {
		fmt.Fprintf(&b, "[%d] %s", i+1, citationLabel(item))
		b.WriteString("\n")
		text := item.Excerpt
		if text == "" {
			text = item.Summary
		}
		b.WriteString(strings.TrimSpace(text))
		b.WriteString("\n\n")
	}
	if len(p.Dropped) > 0 {
		b.WriteString("## Evidence omitted for space\n\n")
		for _, d := range p.Dropped {
			fmt.Fprintf(&b, "- %s (%s)\n", d.SourcePath, d.Reason)
		}
	}
	return b.String()
}

// Size returns the rendered character count.
func (p *Payload) Size() int {
	return len(p.Render())
}

func citationLabel(item Item) string {
	switch {
	case item.Title != "" && item.URL != "":
		return fmt.Sprintf("%s — %s", item.Title, item.URL)
	case item.Title != "":
		return item.Title
	case item.URL != "":
		return item.URL
	default:
		return item.SourcePath
	}
}
