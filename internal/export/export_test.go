package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"proofdeps/internal/graph"
	"proofdeps/internal/ir"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *graph.Graph {
	n := func(id string, cat ir.Category, file string, line int) ir.TraceNode {
		return ir.TraceNode{ID: id, Category: cat, Position: ir.Position{File: file, Line: line}, HasPosition: true}
	}
	return graph.Build(graph.Input{
		File: "main.rs",
		Nodes: []ir.TraceNode{
			n("a", ir.ExplicitAssumption, "main.rs", 1),
			n("b", ir.ImplicitAssertion, "main.rs", 2),
			n("c", ir.Infeasible, "main.rs", 5),
			n("l", ir.ExplicitAssumption, "lib.rs", 9),
		},
		Edges: []ir.TraceEdge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
			{Source: "l", Target: "b"},
		},
		Contents: []ir.LineContent{
			{Line: 1, Text: `requires "x"`},
			{Line: 2, Text: "assert y"},
			{Line: 5, Text: strings.Repeat("z", 80)},
		},
	})
}

func TestMermaid_FlowChart(t *testing.T) {
	m := &MermaidGenerator{Fenced: true}
	out := m.GenerateFlowChart(sample(), nil)

	assert.True(t, strings.HasPrefix(out, "```mermaid\ngraph TD\n"))
	assert.Contains(t, out, `l1["1: requires #quot;x#quot;"]:::explicitAssumption`)
	assert.Contains(t, out, "l1 --> l2\n")
	assert.Contains(t, out, "l2 --> l5\n")
	assert.Contains(t, out, "classDef infeasible fill:#ffcdd2")
	assert.NotContains(t, out, "classDef unknown")
	assert.Contains(t, out, "…")
}

func TestMermaid_Subset(t *testing.T) {
	out := (&MermaidGenerator{}).GenerateFlowChart(sample(), []int{1, 2})
	assert.Contains(t, out, "l1 --> l2")
	assert.NotContains(t, out, "l5")
}

func TestVisual(t *testing.T) {
	v := BuildVisual(sample())
	require.Len(t, v.Nodes, 3)
	assert.Equal(t, "main.rs", v.File)
	assert.Equal(t, 1, v.Nodes[1].External)
	assert.Equal(t, ir.ImplicitAssertion, v.Nodes[1].Primary)
	assert.Len(t, v.Edges, 2)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, v))
	var decoded Visual
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, v, decoded)
}

func TestNeighbourhood(t *testing.T) {
	v := BuildNeighbourhood(sample(), 1, 1)
	require.Len(t, v.Nodes, 2)
	assert.Equal(t, []VisualEdge{{Source: "l1", Target: "l2"}}, v.Edges)
}

func TestSanitizeMermaidID(t *testing.T) {
	assert.Equal(t, "node", sanitizeMermaidID("  "))
	assert.Equal(t, "n_12", sanitizeMermaidID("12"))
	assert.Equal(t, "a_b_c", sanitizeMermaidID("a-b.c"))
}
