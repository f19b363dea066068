package templatedata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/chronicle/internal/tmpl"
)

func TestEveryEmbeddedTemplateParses(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	assert.Contains(t, names, DefaultName)

	for _, name := range names {
		tpl, err := Load(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, tpl.RequiredHeadings(), name)
	}
}

func TestDefaultTemplateCarriesRequiredSections(t *testing.T) {
	tpl, err := Load(DefaultName)
	require.NoError(t, err)

	headings := tpl.RequiredHeadings()
	assert.Contains(t, headings, tmpl.SectionRisksAndGaps)
	assert.Contains(t, headings, tmpl.SectionCriticalPerspective)
}

func TestLoadUnknownTemplate(t *testing.T) {
	_, err := Load("no-such-template")
	require.Error(t, err)
	assert.Contains(t, err.Error(), DefaultName)
}

func TestWriteDefault(t *testing.T) {
	data, err := WriteDefault()
	require.NoError(t, err)
	_, err = tmpl.Parse(data)
	require.NoError(t, err)
}
