package tmpl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTemplate = `
name: research-report
options:
  numbered_citations: true
sections:
  - name: Executive Summary
    guidance: Three paragraphs, conclusions first.
  - name: Findings
  - name: Risks and Gaps
  - name: Critical Perspective
`

func TestParse_ValidTemplate(t *testing.T) {
	tpl, err := Parse([]byte(sampleTemplate))
	require.NoError(t, err)

	assert.Equal(t, "research-report", tpl.Name)
	assert.False(t, tpl.Freeform())
	assert.Equal(t, []string{"Executive Summary", "Findings", "Risks and Gaps", "Critical Perspective"},
		tpl.RequiredHeadings())
	assert.Equal(t, "Three paragraphs, conclusions first.", tpl.GuidanceFor("executive summary"))
	assert.Empty(t, tpl.GuidanceFor("Findings"))
}

func TestParse_RejectsUnknownOption(t *testing.T) {
	_, err := Parse([]byte("name: x\noptions:\n  emit_blockchain: true\nsections:\n  - name: A\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized option")
}

func TestParse_RejectsEmptySectionList(t *testing.T) {
	_, err := Parse([]byte("name: x\nsections: []\n"))
	require.Error(t, err)
}

func TestParse_RejectsDuplicateSections(t *testing.T) {
	_, err := Parse([]byte("name: x\nsections:\n  - name: A\n  - name: a\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeats")
}

func TestFreeform_AppendsRequiredPair(t *testing.T) {
	tpl, err := Parse([]byte("name: open\noptions:\n  freeform: true\n"))
	require.NoError(t, err)

	assert.True(t, tpl.Freeform())
	assert.Equal(t, []string{SectionRisksAndGaps, SectionCriticalPerspective}, tpl.RequiredHeadings())
}

func TestFreeform_DoesNotDuplicateDeclaredRequired(t *testing.T) {
	tpl, err := Parse([]byte(`
name: open
options:
  freeform: true
sections:
  - name: Risks and Gaps
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Risks and Gaps", SectionCriticalPerspective}, tpl.RequiredHeadings())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTemplate), 0o644))

	tpl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "research-report", tpl.Name)
}
