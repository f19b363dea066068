package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StrategyPairwise, cfg.Quality.Strategy)
	assert.Equal(t, 3, cfg.Quality.Candidates)
	assert.Equal(t, DepthStandard, cfg.Depth)
	assert.Equal(t, 96000, cfg.Budgets.MaxInputChars)
	assert.Equal(t, "gpt-4o", cfg.Models.Writer)
	assert.Equal(t, "en", cfg.Language)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chronicle.yaml")
	data := []byte(`
models:
  writer: local-writer
depth: full
quality:
  strategy: best_of
  candidates: 2
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "local-writer", cfg.Models.Writer)
	assert.Equal(t, DepthFull, cfg.Depth)
	assert.Equal(t, StrategyBestOf, cfg.Quality.Strategy)
	// Untouched keys keep their defaults.
	assert.Equal(t, "gpt-4o-mini", cfg.Models.Scout)
	assert.Equal(t, 96000, cfg.Budgets.MaxInputChars)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chronicle.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: de\n"), 0o600))

	t.Setenv("CHRONICLE_LANGUAGE", "fr")
	t.Setenv("CHRONICLE_MODELS_CRITIC", "env-critic")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fr", cfg.Language)
	assert.Equal(t, "env-critic", cfg.Models.Critic)
}

func TestLoad_EnvOverridesMultiWordTopLevelKeys(t *testing.T) {
	t.Setenv("CHRONICLE_TEMPLATE_PATH", "/tmp/custom.yaml")
	t.Setenv("CHRONICLE_OUTPUT_FORMAT", "html")
	t.Setenv("CHRONICLE_BUDGETS_MAX_INPUT_CHARS", "123000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.yaml", cfg.TemplatePath)
	assert.Equal(t, "html", cfg.OutputFormat)
	assert.Equal(t, 123000, cfg.Budgets.MaxInputChars)
}

func TestEnvKeyToPath(t *testing.T) {
	assert.Equal(t, "template_path", envKeyToPath("CHRONICLE_TEMPLATE_PATH"))
	assert.Equal(t, "output_format", envKeyToPath("CHRONICLE_OUTPUT_FORMAT"))
	assert.Equal(t, "budgets.max_input_chars", envKeyToPath("CHRONICLE_BUDGETS_MAX_INPUT_CHARS"))
	assert.Equal(t, "provider.base_url", envKeyToPath("CHRONICLE_PROVIDER_BASE_URL"))
	assert.Equal(t, "language", envKeyToPath("CHRONICLE_LANGUAGE"))
}

func TestLoad_RejectsInvalidDepth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chronicle.yaml")
	require.NoError(t, os.WriteFile(path, []byte("depth: bottomless\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")
}

func TestLoad_RejectsBadBudgets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chronicle.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budgets:\n  max_input_chars: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestModelFor(t *testing.T) {
	m := Models{Scout: "s", Planner: "p", Evidence: "e", Writer: "w", Critic: "c"}

	assert.Equal(t, "s", m.ModelFor("scout"))
	assert.Equal(t, "p", m.ModelFor("plan_check"))
	assert.Equal(t, "e", m.ModelFor("evidence"))
	assert.Equal(t, "c", m.ModelFor("quality"))
	// Unknown roles fall back to the writer model.
	assert.Equal(t, "w", m.ModelFor("mystery"))
}
