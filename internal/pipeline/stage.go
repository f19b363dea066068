// Package pipeline holds the report pipeline core: the fixed stage graph,
// the scheduler that resolves a stage selection into an ordered plan, and
// the runtime that executes stages against the cache, packer, validator,
// and workflow recorder.
package pipeline

import (
	"fmt"

	"github.com/dusk-indust/chronicle/internal/genai"
)

// StageID names one pipeline stage. The set is closed; selection flags and
// workflow records refer to stages by these names.
type StageID string

const (
	StageScout          StageID = "scout"
	StagePlan           StageID = "plan"
	StageAlignment      StageID = "alignment"
	StageTemplateAdjust StageID = "template_adjust"
	StageEvidence       StageID = "evidence"
	StagePlanCheck      StageID = "plan_check"
	StageWriter         StageID = "writer"
	StageQuality        StageID = "quality"
)

// DeclarationOrder fixes tie-breaking and record ordering. Side stages sit
// next to the stage they feed.
var DeclarationOrder = []StageID{
	StageScout,
	StagePlan,
	StageAlignment,
	StageTemplateAdjust,
	StageEvidence,
	StagePlanCheck,
	StageWriter,
	StageQuality,
}

// DefaultSelection is the stage set a plain run executes. Side stages
// (alignment, template_adjust) run only when requested explicitly.
var DefaultSelection = []StageID{
	StageScout, StagePlan, StageEvidence, StagePlanCheck, StageWriter, StageQuality,
}

// dependsOn are execution-order edges: when both endpoints are enabled the
// dependent runs later. These do not enable anything by themselves.
var dependsOn = map[StageID][]StageID{
	StagePlan:           {StageScout},
	StageAlignment:      {StageScout},
	StageTemplateAdjust: {StagePlan},
	StageEvidence:       {StageScout, StagePlan, StageAlignment, StageTemplateAdjust},
	StagePlanCheck:      {StagePlan, StageEvidence},
	StageWriter:         {StageEvidence, StagePlanCheck, StageTemplateAdjust},
	StageQuality:        {StageWriter},
}

// autoRequires are selection-closure edges: enabling a stage silently
// enables these. Declared once and queried structurally; nothing is
// inferred from log text.
var autoRequires = map[StageID][]StageID{
	StagePlan:           {StageScout},
	StageAlignment:      {StageScout},
	StageTemplateAdjust: {StagePlan},
	StageEvidence:       {StageScout},
	StagePlanCheck:      {StagePlan, StageEvidence},
	StageWriter:         {StageEvidence},
	StageQuality:        {StageWriter},
}

// stageVersions tag each stage's logic so cached output is invalidated
// when a stage's behavior changes. Bump on behavioral change only.
var stageVersions = map[StageID]string{
	StageScout:          "scout-v1",
	StagePlan:           "plan-v1",
	StageAlignment:      "alignment-v1",
	StageTemplateAdjust: "template-adjust-v1",
	StageEvidence:       "evidence-v1",
	StagePlanCheck:      "plan-check-v1",
	StageWriter:         "writer-v1",
	StageQuality:        "quality-v1",
}

// roleFor maps stages to generation personas for model selection.
var roleFor = map[StageID]genai.Role{
	StageScout:          genai.RoleScout,
	StagePlan:           genai.RolePlanner,
	StageAlignment:      genai.RolePlanner,
	StageTemplateAdjust: genai.RolePlanner,
	StageEvidence:       genai.RoleEvidence,
	StagePlanCheck:      genai.RolePlanner,
	StageWriter:         genai.RoleWriter,
	StageQuality:        genai.RoleCritic,
}

// Valid reports whether id names a known stage.
func (id StageID) Valid() bool {
	_, ok := stageVersions[id]
	return ok
}

// ParseStageID validates a stage name from flags or tool input.
func ParseStageID(s string) (StageID, error) {
	id := StageID(s)
	if !id.Valid() {
		return "", fmt.Errorf("pipeline: unknown stage %q", s)
	}
	return id, nil
}

// ParseStageIDs validates a list of stage names.
func ParseStageIDs(names []string) ([]StageID, error) {
	ids := make([]StageID, 0, len(names))
	for _, n := range names {
		id, err := ParseStageID(n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Edge is one dependency arrow in the stage graph.
type Edge struct {
	From, To StageID
}

// GraphEdges returns the execution-order edges in deterministic order, for
// diagram export.
func GraphEdges() []Edge {
	var edges []Edge
	for _, to := range DeclarationOrder {
		for _, from := range dependsOn[to] {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	return edges
}

// StageNames renders ids for records and logs.
func StageNames(ids []StageID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return names
}
