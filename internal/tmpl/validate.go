package tmpl

import (
	"regexp"
	"strings"
)

// ResultKind classifies a validation outcome.
type ResultKind int

const (
	// Conformant means every required heading is present and no
	// placeholder text was detected.
	Conformant ResultKind = iota

	// MissingSections means one or more required headings are absent.
	MissingSections

	// PlaceholderDetected means the body contains refusal or boilerplate
	// text instead of report content.
	PlaceholderDetected
)

func (k ResultKind) String() string {
	switch k {
	case Conformant:
		return "conformant"
	case MissingSections:
		return "missing-sections"
	case PlaceholderDetected:
		return "placeholder-detected"
	default:
		return "unknown"
	}
}

// Result is the typed validation outcome repair logic branches on.
type Result struct {
	Kind ResultKind

	// Missing lists absent headings when Kind == MissingSections.
	Missing []string

	// Matched is the placeholder phrase found when Kind == PlaceholderDetected.
	Matched string
}

// OK reports whether the body passed validation.
func (r Result) OK() bool { return r.Kind == Conformant }

// placeholderPatterns match model refusals and template boilerplate that
// must never ship in a report. Matching is case-insensitive.
var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bI (?:cannot|can't|am unable to|'m unable to) (?:complete|fulfill|assist|help with|write)\b`),
	regexp.MustCompile(`(?i)\bas an AI(?: language)? model\b`),
	regexp.MustCompile(`(?i)\[(?:insert|add|your) [^\]]{0,40}\]`),
	regexp.MustCompile(`(?i)\blorem ipsum\b`),
	regexp.MustCompile(`(?i)<!--\s*TODO`),
}

// minBodyChars is the floor below which a report body is treated as empty
// boilerplate regardless of headings.
const minBodyChars = 200

// headingRe captures markdown ATX heading text at any level.
var headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*$`)

// Validate checks body against the template's required headings and the
// placeholder blocklist. Placeholder detection runs first: a refusal with
// coincidentally correct headings is still not a report.
func Validate(body string, t *Template) Result {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) < minBodyChars {
		return Result{Kind: PlaceholderDetected, Matched: "body shorter than minimum"}
	}

	for _, re := range placeholderPatterns {
		if m := re.FindString(body); m != "" {
			return Result{Kind: PlaceholderDetected, Matched: m}
		}
	}

	present := make(map[string]bool)
	for _, m := range headingRe.FindAllStringSubmatch(body, -1) {
		present[normalizeHeading(m[1])] = true
	}

	var missing []string
	for _, required := range t.RequiredHeadings() {
		if !present[normalizeHeading(required)] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return Result{Kind: MissingSections, Missing: missing}
	}

	return Result{Kind: Conformant}
}
