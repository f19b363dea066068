package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Plan is a resolved, dependency-closed execution order plus the stages the
// selection left out. Disabled stages are recorded as such so downstream
// tooling can distinguish "excluded" from "already cached".
type Plan struct {
	Ordered  []StageID
	Disabled []StageID

	// RequiredBy explains why an unrequested stage is in the plan:
	// stage -> the requested stage(s) that auto-required it.
	RequiredBy map[StageID][]StageID
}

// Scheduler resolves stage selections against the fixed pipeline graph.
type Scheduler struct{}

// NewScheduler returns a Scheduler. The graph is package data; the type
// exists so callers hold an explicit collaborator rather than free
// functions.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Resolve turns an include/exclude selection into an ordered plan. An empty
// include means the default selection. Exclusion removes a stage from the
// requested seed, but a stage transitively auto-required by a retained
// stage is enabled regardless and annotated in RequiredBy.
func (s *Scheduler) Resolve(include, exclude []StageID) (*Plan, error) {
	for _, id := range append(append([]StageID{}, include...), exclude...) {
		if !id.Valid() {
			return nil, fmt.Errorf("pipeline: unknown stage %q in selection", id)
		}
	}

	requested := include
	if len(requested) == 0 {
		requested = DefaultSelection
	}

	excluded := make(map[StageID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	enabled := make(map[StageID]bool)
	requiredBy := make(map[StageID][]StageID)

	var add func(id StageID, because StageID)
	add = func(id StageID, because StageID) {
		if because != "" && !enabled[id] {
			requiredBy[id] = append(requiredBy[id], because)
		}
		if enabled[id] {
			return
		}
		enabled[id] = true
		for _, dep := range autoRequires[id] {
			add(dep, id)
		}
	}

	for _, id := range requested {
		if excluded[id] {
			continue
		}
		add(id, "")
	}

	ordered := topoOrder(enabled)

	var disabled []StageID
	for _, id := range DeclarationOrder {
		if !enabled[id] {
			disabled = append(disabled, id)
		}
	}

	// A requested stage can auto-require an excluded one; drop the
	// annotation for stages the user asked for directly.
	for _, id := range requested {
		if !excluded[id] {
			delete(requiredBy, id)
		}
	}
	for id := range requiredBy {
		sort.Slice(requiredBy[id], func(i, j int) bool {
			return declIndex(requiredBy[id][i]) < declIndex(requiredBy[id][j])
		})
	}

	return &Plan{Ordered: ordered, Disabled: disabled, RequiredBy: requiredBy}, nil
}

// topoOrder orders the enabled set by the dependency graph restricted to
// enabled stages. Kahn's algorithm with declaration-order tie-breaking
// keeps execution deterministic across runs with identical selection.
func topoOrder(enabled map[StageID]bool) []StageID {
	indegree := make(map[StageID]int)
	for id := range enabled {
		indegree[id] = 0
	}
	for id := range enabled {
		for _, dep := range dependsOn[id] {
			if enabled[dep] {
				indegree[id]++
			}
		}
	}

	var ordered []StageID
	for len(indegree) > 0 {
		// Pick the ready stage earliest in declaration order.
		pick := StageID("")
		for _, id := range DeclarationOrder {
			if deg, ok := indegree[id]; ok && deg == 0 {
				pick = id
				break
			}
		}
		if pick == "" {
			// The fixed graph is acyclic; reaching here means the tables
			// were edited into a cycle. Fail loudly in tests.
			panic("pipeline: stage graph contains a cycle")
		}

		ordered = append(ordered, pick)
		delete(indegree, pick)
		for id := range indegree {
			for _, dep := range dependsOn[id] {
				if dep == pick {
					indegree[id]--
				}
			}
		}
	}

	return ordered
}

func declIndex(id StageID) int {
	for i, d := range DeclarationOrder {
		if d == id {
			return i
		}
	}
	return len(DeclarationOrder)
}

// Describe renders a plan for logs and the workflow record.
func (p *Plan) Describe() string {
	var b strings.Builder
	b.WriteString(strings.Join(StageNames(p.Ordered), " → "))
	if len(p.Disabled) > 0 {
		b.WriteString(" (disabled: ")
		b.WriteString(strings.Join(StageNames(p.Disabled), ", "))
		b.WriteString(")")
	}
	return b.String()
}

// Enabled reports whether the plan includes a stage.
func (p *Plan) Enabled(id StageID) bool {
	for _, s := range p.Ordered {
		if s == id {
			return true
		}
	}
	return false
}
