// Package export renders a run's workflow record into shareable formats:
// a Mermaid diagram of the stage graph and a JSON summary for tooling.
package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/chronicle/internal/pipeline"
	"github.com/dusk-indust/chronicle/internal/workflow"
)

// GenerateMermaid produces a Mermaid graph TD diagram of the pipeline with
// each stage annotated by its latest workflow status. Disabled stages get a
// dashed style so the executed path stands out.
func GenerateMermaid(record *workflow.Record) string {
	// Stable node IDs (alphanumeric only).
	nodeIDs := make(map[pipeline.StageID]string)
	for i, id := range pipeline.DeclarationOrder {
		nodeIDs[id] = fmt.Sprintf("S%d", i)
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var disabled []string
	for _, id := range pipeline.DeclarationOrder {
		status := workflow.StatusPending
		if record != nil {
			status = record.LastStatus(string(id))
		}
		sb.WriteString(fmt.Sprintf("  %s[\"%s<br/>%s\"]\n", nodeIDs[id], id, status))
		if status == workflow.StatusDisabled {
			disabled = append(disabled, nodeIDs[id])
		}
	}

	for _, edge := range pipeline.GraphEdges() {
		sb.WriteString(fmt.Sprintf("  %s --> %s\n", nodeIDs[edge.From], nodeIDs[edge.To]))
	}

	for _, id := range disabled {
		sb.WriteString(fmt.Sprintf("  style %s stroke-dasharray: 5 5\n", id))
	}

	return sb.String()
}
