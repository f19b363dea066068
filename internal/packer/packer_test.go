package packer

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/chronicle/internal/config"
)

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestPack_OrdersByStrengthThenRecency(t *testing.T) {
	pool := []Item{
		{SourcePath: "a", Title: "weak-new", ClaimStrength: 1, RetrievedAt: day(20), Excerpt: "w"},
		{SourcePath: "b", Title: "strong-old", ClaimStrength: 3, RetrievedAt: day(1), Excerpt: "s"},
		{SourcePath: "c", Title: "strong-new", ClaimStrength: 3, RetrievedAt: day(10), Excerpt: "n"},
	}

	p := Pack(pool, 10_000, config.DepthStandard)
	require.Len(t, p.Items, 3)
	assert.Equal(t, "strong-new", p.Items[0].Title)
	assert.Equal(t, "strong-old", p.Items[1].Title)
	assert.Equal(t, "weak-new", p.Items[2].Title)
}

func TestPack_DiversityBreaksFullTies(t *testing.T) {
	// Three items tied on strength and recency, two from the same source:
	// the lone source must not be starved by the dominant one.
	pool := []Item{
		{SourcePath: "dominant", Title: "d1", ClaimStrength: 2, RetrievedAt: day(5), Excerpt: "x"},
		{SourcePath: "dominant", Title: "d2", ClaimStrength: 2, RetrievedAt: day(5), Excerpt: "y"},
		{SourcePath: "lone", Title: "l1", ClaimStrength: 2, RetrievedAt: day(5), Excerpt: "z"},
	}

	p := Pack(pool, 10_000, config.DepthStandard)
	require.Len(t, p.Items, 3)
	// After one dominant item is packed, the lone source wins the tie.
	assert.Equal(t, "lone", p.Items[1].SourcePath)
}

func TestPack_BudgetDropsAreRecorded(t *testing.T) {
	pool := []Item{
		{SourcePath: "a", Title: "fits", ClaimStrength: 3, Excerpt: strings.Repeat("x", 50)},
		{SourcePath: "b", Title: "too big", ClaimStrength: 1, Excerpt: strings.Repeat("y", 500)},
	}

	p := Pack(pool, 100, config.DepthStandard)
	require.Len(t, p.Items, 1)
	require.Len(t, p.Dropped, 1)
	assert.Equal(t, "b", p.Dropped[0].SourcePath)
	assert.Equal(t, "over budget", p.Dropped[0].Reason)
	// The drop ledger surfaces in the rendered payload.
	assert.Contains(t, p.Render(), "Evidence omitted")
}

func TestPack_FallsBackToSummaryBeforeDropping(t *testing.T) {
	pool := []Item{
		{SourcePath: "a", ClaimStrength: 2, Excerpt: strings.Repeat("x", 500), Summary: "short summary"},
	}

	p := Pack(pool, 100, config.DepthStandard)
	require.Len(t, p.Items, 1)
	assert.Empty(t, p.Items[0].Excerpt)
	assert.Empty(t, p.Dropped)
}

func TestPack_BriefDepthPrefersSummaries(t *testing.T) {
	pool := []Item{
		{SourcePath: "a", ClaimStrength: 2, Excerpt: strings.Repeat("x", 300), Summary: "the gist"},
	}

	p := Pack(pool, 10_000, config.DepthBrief)
	require.Len(t, p.Items, 1)
	assert.Empty(t, p.Items[0].Excerpt)
	assert.Equal(t, "the gist", p.Items[0].Summary)
}

func TestBudget_DepthScaling(t *testing.T) {
	assert.Equal(t, 500, Budget(1000, config.DepthBrief))
	assert.Equal(t, 1000, Budget(1000, config.DepthStandard))
	assert.Equal(t, 1500, Budget(1000, config.DepthFull))
}

func TestCondense_TightensAndKeepsLedger(t *testing.T) {
	pool := []Item{
		{SourcePath: "a", Title: "strong", ClaimStrength: 3, Excerpt: strings.Repeat("a", 200), Summary: strings.Repeat("s", 80)},
		{SourcePath: "b", Title: "weak", ClaimStrength: 1, Excerpt: strings.Repeat("b", 200), Summary: strings.Repeat("t", 80)},
		{SourcePath: "c", Title: "huge", ClaimStrength: 2, Excerpt: strings.Repeat("c", 900)},
	}
	p := Pack(pool, 600, config.DepthStandard)
	before := len(p.Dropped)

	c := Condense(p, 100)
	// Strongest item survives in summary form.
	require.NotEmpty(t, c.Items)
	assert.Equal(t, "a", c.Items[0].SourcePath)
	assert.Empty(t, c.Items[0].Excerpt)
	// Everything condensed out joins the ledger; nothing vanishes silently.
	assert.GreaterOrEqual(t, len(c.Dropped), before)
	total := len(c.Items) + (len(c.Dropped) - before)
	assert.Equal(t, len(p.Items), total)
}

func TestCondense_TruncatesExcerptOnRuneBoundary(t *testing.T) {
	// 200 three-byte runes: the byte cap lands mid-rune unless the cut
	// backs off to a boundary.
	pool := []Item{
		{SourcePath: "a", ClaimStrength: 3, Excerpt: strings.Repeat("日", 200)},
	}
	p := Pack(pool, 1000, config.DepthStandard)
	require.NotEmpty(t, p.Items)

	c := Condense(p, 500)
	require.NotEmpty(t, c.Items)
	assert.True(t, utf8.ValidString(c.Items[0].Excerpt))
	assert.True(t, strings.HasSuffix(c.Items[0].Excerpt, "…"))
}

func TestRender_NumbersCitations(t *testing.T) {
	pool := []Item{
		{SourcePath: "a", Title: "First", URL: "https://example.org/1", ClaimStrength: 2, Excerpt: "alpha"},
		{SourcePath: "b", Title: "Second", ClaimStrength: 1, Excerpt: "beta"},
	}
	p := Pack(pool, 10_000, config.DepthStandard)

	out := p.Render()
	assert.Contains(t, out, "[1] First — https://example.org/1")
	assert.Contains(t, out, "[2] Second")
	assert.Less(t, strings.Index(out, "[1]"), strings.Index(out, "[2]"))
}
