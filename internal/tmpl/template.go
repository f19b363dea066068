// Package tmpl defines the report template schema and the structural
// validator for generated report bodies.
package tmpl

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Always-required sections in free-form mode. Every report must confront
// its own weaknesses even when no template is supplied.
const (
	SectionRisksAndGaps        = "Risks and Gaps"
	SectionCriticalPerspective = "Critical Perspective"
)

// recognizedOptions is the closed set of template-level options. Unknown
// keys fail template loading instead of being carried as free text.
var recognizedOptions = map[string]bool{
	"numbered_citations": true,
	"include_figures":    true,
	"freeform":           true,
}

// Section is one required heading plus optional guidance for the writer.
type Section struct {
	Name     string `yaml:"name"`
	Guidance string `yaml:"guidance,omitempty"`
}

// Template is the structured report template: an ordered section list plus
// validated options.
type Template struct {
	Name     string          `yaml:"name"`
	Options  map[string]bool `yaml:"options,omitempty"`
	Sections []Section       `yaml:"sections"`
}

// Load reads and validates a template file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tmpl: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw template YAML.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("tmpl: parse: %w", err)
	}

	for key := range t.Options {
		if !recognizedOptions[key] {
			return nil, fmt.Errorf("tmpl: unrecognized option %q", key)
		}
	}

	if t.Freeform() {
		// Free-form templates may omit sections; the required pair is
		// appended below either way.
	} else if len(t.Sections) == 0 {
		return nil, fmt.Errorf("tmpl: template %q declares no sections", t.Name)
	}

	seen := make(map[string]bool, len(t.Sections))
	for _, s := range t.Sections {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("tmpl: template %q has a section with no name", t.Name)
		}
		norm := normalizeHeading(s.Name)
		if seen[norm] {
			return nil, fmt.Errorf("tmpl: template %q repeats section %q", t.Name, s.Name)
		}
		seen[norm] = true
	}

	return &t, nil
}

// Freeform reports whether this template runs in free-form mode.
func (t *Template) Freeform() bool {
	return t.Options["freeform"]
}

// RequiredHeadings returns every heading a conformant report must carry, in
// order. In free-form mode that is the always-required pair (plus any
// declared sections first).
func (t *Template) RequiredHeadings() []string {
	headings := make([]string, 0, len(t.Sections)+2)
	for _, s := range t.Sections {
		headings = append(headings, s.Name)
	}
	if t.Freeform() {
		for _, required := range []string{SectionRisksAndGaps, SectionCriticalPerspective} {
			if !containsHeading(headings, required) {
				headings = append(headings, required)
			}
		}
	}
	return headings
}

// GuidanceFor returns the guidance string for a section name, if any.
func (t *Template) GuidanceFor(name string) string {
	for _, s := range t.Sections {
		if normalizeHeading(s.Name) == normalizeHeading(name) {
			return s.Guidance
		}
	}
	return ""
}

func containsHeading(headings []string, name string) bool {
	for _, h := range headings {
		if normalizeHeading(h) == normalizeHeading(name) {
			return true
		}
	}
	return false
}

// normalizeHeading lowercases and trims a heading for comparison.
func normalizeHeading(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
