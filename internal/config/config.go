// Package config loads chronicle configuration.
//
// Precedence, highest to lowest:
//  1. Environment variables (CHRONICLE_*)
//  2. YAML config file
//  3. Defaults
//
// The loaded Config is an immutable snapshot: the pipeline threads resolved
// values through every stage call and never reads ambient state.
package config

import (
	"fmt"
	"os"
	"strings"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces chronicle environment variables, e.g.
// CHRONICLE_MODELS_WRITER -> models.writer.
const envPrefix = "CHRONICLE_"

// Depth controls how aggressively evidence is condensed and how much raw
// excerpt text reaches the writer.
type Depth string

const (
	DepthBrief    Depth = "brief"
	DepthStandard Depth = "standard"
	DepthFull     Depth = "full"
)

// Strategy selects how the quality loop reduces candidates to one report.
type Strategy string

const (
	StrategyPairwise Strategy = "pairwise"
	StrategyBestOf   Strategy = "best_of"
)

// Models names the model used for each pipeline role.
type Models struct {
	Scout    string `koanf:"scout"`
	Planner  string `koanf:"planner"`
	Evidence string `koanf:"evidence"`
	Writer   string `koanf:"writer"`
	Critic   string `koanf:"critic"`
}

// Budgets bounds prompt sizes. All values are characters; the pipeline
// treats roughly four characters as one token for budget purposes.
type Budgets struct {
	// MaxInputChars caps a single generation call's assembled prompt.
	MaxInputChars int `koanf:"max_input_chars"`

	// RunChars caps cumulative prompt characters across a whole run.
	RunChars int `koanf:"run_chars"`
}

// Quality configures the refinement loop.
type Quality struct {
	Strategy   Strategy `koanf:"strategy"`
	Iterations int      `koanf:"iterations"`
	Candidates int      `koanf:"candidates"`
}

// Provider configures the generation backend.
type Provider struct {
	// Kind is "openai" (any OpenAI-compatible endpoint) or "fake" (tests).
	Kind    string `koanf:"kind"`
	BaseURL string `koanf:"base_url"`
	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `koanf:"token_env"`
}

// Logging configures the zap logger.
type Logging struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config is the full configuration snapshot for a run.
type Config struct {
	Models   Models   `koanf:"models"`
	Budgets  Budgets  `koanf:"budgets"`
	Quality  Quality  `koanf:"quality"`
	Provider Provider `koanf:"provider"`
	Logging  Logging  `koanf:"logging"`

	Language     string `koanf:"language"`
	Depth        Depth  `koanf:"depth"`
	TemplatePath string `koanf:"template_path"`
	OutputFormat string `koanf:"output_format"`
}

// defaultYAML is the baseline configuration, parsed before file and env
// overrides are applied.
var defaultYAML = []byte(`
models:
  scout: gpt-4o-mini
  planner: gpt-4o
  evidence: gpt-4o-mini
  writer: gpt-4o
  critic: gpt-4o
budgets:
  max_input_chars: 96000
  run_chars: 1200000
quality:
  strategy: pairwise
  iterations: 1
  candidates: 3
provider:
  kind: openai
  base_url: ""
  token_env: OPENAI_API_KEY
logging:
  level: info
  format: console
language: en
depth: standard
template_path: ""
output_format: markdown
`)

// Load builds a Config from defaults, an optional YAML file, and the
// environment. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultYAML), kyaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := k.Load(rawbytes.Provider(data), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyToPath), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultYAML returns the baseline configuration document, so `init` can
// seed an editable project config.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultYAML))
	copy(out, defaultYAML)
	return out
}

// envSections names the nested config blocks an environment key may
// address. Anything else stays a top-level key, so multi-word names like
// template_path survive the mapping.
var envSections = map[string]bool{
	"models":   true,
	"budgets":  true,
	"quality":  true,
	"provider": true,
	"logging":  true,
}

// envKeyToPath maps CHRONICLE_BUDGETS_MAX_INPUT_CHARS to the koanf path
// budgets.max_input_chars, and CHRONICLE_TEMPLATE_PATH to template_path.
func envKeyToPath(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if section, rest, ok := strings.Cut(key, "_"); ok && envSections[section] {
		return section + "." + rest
	}
	return key
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Depth {
	case DepthBrief, DepthStandard, DepthFull:
	default:
		return fmt.Errorf("config: unknown depth %q", c.Depth)
	}
	switch c.Quality.Strategy {
	case StrategyPairwise, StrategyBestOf:
	default:
		return fmt.Errorf("config: unknown quality strategy %q", c.Quality.Strategy)
	}
	if c.Quality.Iterations < 0 {
		return fmt.Errorf("config: quality iterations must be >= 0, got %d", c.Quality.Iterations)
	}
	if c.Quality.Candidates < 1 {
		return fmt.Errorf("config: quality candidates must be >= 1, got %d", c.Quality.Candidates)
	}
	if c.Budgets.MaxInputChars <= 0 {
		return fmt.Errorf("config: max_input_chars must be positive, got %d", c.Budgets.MaxInputChars)
	}
	if c.Budgets.RunChars < c.Budgets.MaxInputChars {
		return fmt.Errorf("config: run_chars (%d) must be >= max_input_chars (%d)",
			c.Budgets.RunChars, c.Budgets.MaxInputChars)
	}
	return nil
}

// ModelFor returns the configured model name for a pipeline role.
func (m Models) ModelFor(role string) string {
	switch role {
	case "scout":
		return m.Scout
	case "planner", "plan", "plan_check", "alignment", "template_adjust":
		return m.Planner
	case "evidence":
		return m.Evidence
	case "writer":
		return m.Writer
	case "critic", "quality":
		return m.Critic
	default:
		return m.Writer
	}
}
