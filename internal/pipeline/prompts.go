package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dusk-indust/chronicle/internal/archive"
	"github.com/dusk-indust/chronicle/internal/packer"
)

// Prompt builders. Each builder reads only the declared upstream artifacts
// for its stage so the fingerprint input sets stay accurate.

// sourcePreviewChars caps how much of each source the scout prompt quotes.
const sourcePreviewChars = 600

func scoutPrompt(run *Run, tree *archive.Tree) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are surveying an archive of research material on: %s\n\n", run.Topic)
	b.WriteString("Produce a source survey: for each source give one line with its ")
	b.WriteString("kind, what it covers, and how credible/recent it appears. Then ")
	b.WriteString("summarize the overall coverage and note obvious blind spots.\n\n")
	b.WriteString("## Sources\n\n")
	for _, src := range tree.Sources {
		fmt.Fprintf(&b, "### %s (%s)\n", src.Path, src.Kind)
		if src.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", src.Title)
		}
		if src.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", src.URL)
		}
		if !src.RetrievedAt.IsZero() {
			fmt.Fprintf(&b, "Retrieved: %s\n", src.RetrievedAt.Format("2006-01-02"))
		}
		b.WriteString(preview(src.Content, sourcePreviewChars))
		b.WriteString("\n\n")
	}
	return b.String()
}

func planPrompt(run *Run, scoutNotes string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Draft a report plan on: %s\n", run.Topic)
	fmt.Fprintf(&b, "Report language: %s. Depth: %s.\n\n", run.Config.Language, run.Config.Depth)
	b.WriteString("The plan lists, per template section, the questions to answer ")
	b.WriteString("and which sources look most relevant.\n\n")
	b.WriteString("## Template sections\n\n")
	for _, h := range run.Template.RequiredHeadings() {
		fmt.Fprintf(&b, "- %s", h)
		if g := run.Template.GuidanceFor(h); g != "" {
			fmt.Fprintf(&b, " — %s", g)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n## Source survey\n\n")
	b.WriteString(scoutNotes)
	return b.String()
}

func alignmentPrompt(run *Run, scoutNotes string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Check whether the archived sources actually cover the topic: %s\n\n", run.Topic)
	b.WriteString("List sources that are off-topic or redundant, and questions the ")
	b.WriteString("topic implies that no source addresses.\n\n")
	b.WriteString(scoutNotes)
	return b.String()
}

func templateAdjustPrompt(run *Run, planNotes string) string {
	var b strings.Builder
	b.WriteString("Given the report plan below, propose per-section guidance ")
	b.WriteString("adjustments: which sections deserve more depth, which can be ")
	b.WriteString("brief, and any ordering concerns. Do not add or remove sections.\n\n")
	b.WriteString(planNotes)
	return b.String()
}

func evidencePrompt(run *Run, tree *archive.Tree, scoutNotes, planNotes, adjustNotes string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract evidence for a report on: %s\n\n", run.Topic)
	b.WriteString("For every claim the report could make, emit one line in exactly this format:\n\n")
	b.WriteString("CLAIM [S<strength 0-3>] (<source path>) <claim statement> :: <supporting excerpt>\n\n")
	b.WriteString("Strength: 3 = directly stated by a primary source, 2 = supported, ")
	b.WriteString("1 = suggested, 0 = speculative. Use the exact source paths given.\n\n")
	if planNotes != "" {
		b.WriteString("## Plan\n\n" + planNotes + "\n\n")
	}
	if adjustNotes != "" {
		b.WriteString("## Section guidance adjustments\n\n" + adjustNotes + "\n\n")
	}
	if scoutNotes != "" {
		b.WriteString("## Source survey\n\n" + scoutNotes + "\n\n")
	}
	b.WriteString("## Sources\n\n")
	for _, src := range tree.Sources {
		fmt.Fprintf(&b, "### %s\n%s\n\n", src.Path, src.Content)
	}
	return b.String()
}

func planCheckPrompt(run *Run, planNotes, evidenceNotes string) string {
	var b strings.Builder
	b.WriteString("Review the plan against the extracted evidence. For each plan ")
	b.WriteString("item note whether the evidence supports it, contradicts it, or ")
	b.WriteString("is missing. End with a revised section-by-section emphasis list.\n\n")
	b.WriteString("## Plan\n\n" + planNotes + "\n\n")
	b.WriteString("## Evidence\n\n" + evidenceNotes)
	return b.String()
}

func writerPrompt(run *Run, payload *packer.Payload, planNotes, checkNotes, adjustNotes string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the full report on: %s\n", run.Topic)
	fmt.Fprintf(&b, "Language: %s. Output format: %s.\n\n", run.Config.Language, run.Config.OutputFormat)
	b.WriteString("Requirements:\n")
	b.WriteString("- Use exactly the section headings listed below, as markdown headings, in order.\n")
	b.WriteString("- Cite evidence inline with its [n] number; never invent citations.\n")
	b.WriteString("- Note evidence listed as omitted in a gaps discussion rather than ignoring it.\n\n")
	b.WriteString("## Required sections\n\n")
	for _, h := range run.Template.RequiredHeadings() {
		fmt.Fprintf(&b, "- %s", h)
		if g := run.Template.GuidanceFor(h); g != "" {
			fmt.Fprintf(&b, " — %s", g)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if planNotes != "" {
		b.WriteString("## Plan\n\n" + planNotes + "\n\n")
	}
	if checkNotes != "" {
		b.WriteString("## Plan review\n\n" + checkNotes + "\n\n")
	}
	if adjustNotes != "" {
		b.WriteString("## Section guidance adjustments\n\n" + adjustNotes + "\n\n")
	}
	b.WriteString(payload.Render())
	return b.String()
}

// repairAppendPrompt asks the writer to extend a draft with its missing
// sections rather than regenerate everything.
func repairAppendPrompt(run *Run, body string, missing []string) string {
	var b strings.Builder
	b.WriteString("The report draft below is missing required sections. Write ONLY ")
	b.WriteString("the missing sections, each under its exact heading, consistent ")
	b.WriteString("with the draft's voice and citations:\n\n")
	for _, m := range missing {
		fmt.Fprintf(&b, "- %s\n", m)
	}
	b.WriteString("\n## Draft\n\n")
	b.WriteString(body)
	return b.String()
}

// preview returns the head of content bounded to n characters.
func preview(content string, n int) string {
	content = strings.TrimSpace(content)
	if len(content) <= n {
		return content
	}
	// Back off to a rune boundary so the cut never leaves invalid bytes.
	for n > 0 && !utf8.RuneStart(content[n]) {
		n--
	}
	return content[:n] + "…"
}

// claimRe parses the evidence stage's claim line format.
var claimRe = regexp.MustCompile(`(?m)^CLAIM \[S([0-3])\] \(([^)]+)\) (.+?)(?: :: (.+))?$`)

// evidencePool turns the evidence artifact plus the archive into packer
// items. Claims citing unknown source paths are kept with the claim text as
// excerpt so they still surface (and can be flagged), but carry no source
// metadata.
func evidencePool(tree *archive.Tree, evidenceNotes string) []packer.Item {
	bySrc := make(map[string]archive.Source, len(tree.Sources))
	for _, s := range tree.Sources {
		bySrc[s.Path] = s
	}

	var pool []packer.Item
	for _, m := range claimRe.FindAllStringSubmatch(evidenceNotes, -1) {
		strength, _ := strconv.Atoi(m[1])
		item := packer.Item{
			SourcePath:    m[2],
			Summary:       strings.TrimSpace(m[3]),
			ClaimStrength: strength,
		}
		if m[4] != "" {
			item.Excerpt = strings.TrimSpace(m[4])
		}
		if src, ok := bySrc[item.SourcePath]; ok {
			item.Title = src.Title
			item.URL = src.URL
			item.RetrievedAt = src.RetrievedAt
		}
		pool = append(pool, item)
	}
	return pool
}
