package pipeline

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/chronicle/internal/archive"
	"github.com/dusk-indust/chronicle/internal/config"
	"github.com/dusk-indust/chronicle/internal/packer"
	"github.com/dusk-indust/chronicle/internal/tmpl"
)

func testRun(t *testing.T) *Run {
	t.Helper()
	template, err := tmpl.Parse([]byte(`
name: prompt-test
sections:
  - name: Findings
    guidance: the core findings
  - name: Risks and Gaps
  - name: Critical Perspective
`))
	require.NoError(t, err)

	cfg := config.Config{
		Language:     "en",
		Depth:        config.DepthStandard,
		OutputFormat: "markdown",
	}
	run, err := NewRun("test topic", t.TempDir(), t.TempDir(), cfg, template)
	require.NoError(t, err)
	return run
}

func packedPayload() *packer.Payload {
	return packer.Pack([]packer.Item{
		{SourcePath: "sources/a.md", Title: "Primary", Excerpt: "measured drop", ClaimStrength: 3},
	}, 10000, config.DepthStandard)
}

func TestClaimLineParsing(t *testing.T) {
	tree := &archive.Tree{Sources: []archive.Source{
		{Path: "sources/a.md", Title: "Primary", URL: "https://example.com/a", RetrievedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}}

	notes := "preamble the model added\n" +
		"CLAIM [S3] (sources/a.md) latency dropped :: measured 40% drop\n" +
		"CLAIM [S0] (sources/missing.md) speculative point\n" +
		"not a claim line\n"

	pool := evidencePool(tree, notes)
	require.Len(t, pool, 2)

	assert.Equal(t, 3, pool[0].ClaimStrength)
	assert.Equal(t, "sources/a.md", pool[0].SourcePath)
	assert.Equal(t, "latency dropped", pool[0].Summary)
	assert.Equal(t, "measured 40% drop", pool[0].Excerpt)
	assert.Equal(t, "Primary", pool[0].Title)
	assert.Equal(t, "https://example.com/a", pool[0].URL)

	// Unknown source path keeps the claim but carries no metadata.
	assert.Equal(t, 0, pool[1].ClaimStrength)
	assert.Empty(t, pool[1].Title)
	assert.Empty(t, pool[1].Excerpt)
}

func TestEvidencePromptDeclaresClaimFormat(t *testing.T) {
	run := testRun(t)
	tree := &archive.Tree{Sources: []archive.Source{{Path: "sources/a.md", Content: "body"}}}

	prompt := evidencePrompt(run, tree, "survey", "the plan", "")
	assert.Contains(t, prompt, "CLAIM [S<strength 0-3>]")
	assert.Contains(t, prompt, "## Plan")
	assert.Contains(t, prompt, "sources/a.md")
	assert.NotContains(t, prompt, "## Section guidance adjustments")
}

func TestWriterPromptListsRequiredSections(t *testing.T) {
	run := testRun(t)

	prompt := writerPrompt(run, packedPayload(), "plan notes", "", "")
	for _, h := range run.Template.RequiredHeadings() {
		assert.Contains(t, prompt, h)
	}
	assert.Contains(t, prompt, "## Plan")
	assert.NotContains(t, prompt, "## Plan review")
}

func TestPreviewBoundsContent(t *testing.T) {
	assert.Equal(t, "short", preview("short", 100))

	long := preview(strings.Repeat("x", 1000), 10)
	assert.True(t, strings.HasPrefix(long, "xxxxxxxxxx"))
	assert.True(t, strings.HasSuffix(long, "…"))

	// A cut landing inside a multibyte rune backs off to the boundary.
	wide := preview(strings.Repeat("日", 10), 4)
	assert.True(t, utf8.ValidString(wide))
	assert.Equal(t, "日…", wide)
}
