package graph

import (
	"testing"

	"proofdeps/internal/ir"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainFile = "main.rs"

func node(id string, cat ir.Category, file string, line int) ir.TraceNode {
	return ir.TraceNode{
		ID:          id,
		Category:    cat,
		Position:    ir.Position{File: file, Line: line},
		HasPosition: true,
	}
}

func edge(src, dst string) ir.TraceEdge {
	return ir.TraceEdge{Source: src, Target: dst, Label: "used"}
}

func TestBuild_SimpleProjection(t *testing.T) {
	g := Build(Input{
		File: mainFile,
		Nodes: []ir.TraceNode{
			node("n1", ir.ExplicitAssertion, mainFile, 3),
			node("n2", ir.ExplicitAssumption, mainFile, 1),
		},
		Edges: []ir.TraceEdge{edge("n2", "n1")},
	})

	assert.Equal(t, []int{1, 3}, g.Lines())
	assert.Equal(t, []Edge{{Source: 1, Target: 3}}, g.Edges())
	assert.Equal(t, []int{1}, g.Parents(3))
	assert.Equal(t, []int{3}, g.Children(1))
}

func TestBuild_BypassExplicitAssertion(t *testing.T) {
	g := Build(Input{
		File: mainFile,
		Nodes: []ir.TraceNode{
			node("n1", ir.ExplicitAssertion, mainFile, 5),
			node("n2", ir.ImplicitAssumption, mainFile, 2),
			node("n7", ir.ImplicitAssertion, mainFile, 7),
		},
		Edges: []ir.TraceEdge{edge("n2", "n1"), edge("n1", "n7")},
	})

	assert.Equal(t, []int{2, 5, 7}, g.Lines(), "bypassed line 5 stays a vertex")
	assert.True(t, g.HasEdge(2, 5))
	assert.True(t, g.HasEdge(2, 7))
	assert.False(t, g.HasEdge(5, 7))
	assert.Len(t, g.Edges(), 2)

	// The raw projection still records the original pair.
	assert.Contains(t, g.RawEdges(), LabeledEdge{Source: 5, Target: 7, Label: "used"})
}

func TestBuild_BypassChainAndTerminalFallback(t *testing.T) {
	// 1 (assumption) -> 2 (explicit) -> 3 (explicit) -> 4
	// 9 (explicit, no parents) -> 4
	g := Build(Input{
		File: mainFile,
		Nodes: []ir.TraceNode{
			node("a", ir.ExplicitAssumption, mainFile, 1),
			node("b", ir.ExplicitAssertion, mainFile, 2),
			node("c", ir.ExplicitAssertion, mainFile, 3),
			node("d", ir.ImplicitAssertion, mainFile, 4),
			node("e", ir.ExplicitAssertion, mainFile, 9),
		},
		Edges: []ir.TraceEdge{edge("a", "b"), edge("b", "c"), edge("c", "d"), edge("e", "d")},
	})

	assert.Equal(t, []int{1, 9}, g.Parents(4))
	assert.Equal(t, []int{1}, g.Parents(3))
	assert.Equal(t, []int{1}, g.Parents(2))
}

func TestBuild_BypassTerminatesOnCycles(t *testing.T) {
	// 2 and 3 are explicit assertions justifying each other; 3 -> 4.
	g := Build(Input{
		File: mainFile,
		Nodes: []ir.TraceNode{
			node("x", ir.ExplicitAssertion, mainFile, 2),
			node("y", ir.ExplicitAssertion, mainFile, 3),
			node("z", ir.ImplicitAssertion, mainFile, 4),
		},
		Edges: []ir.TraceEdge{edge("x", "y"), edge("y", "x"), edge("y", "z")},
	})

	// Each side of the loop is credited where the walk closes.
	assert.Equal(t, []Edge{{Source: 2, Target: 3}, {Source: 3, Target: 2}, {Source: 3, Target: 4}}, g.Edges())
	require.NotEmpty(t, g.Parents(4))
	assert.Equal(t, []int{2, 3, 4}, g.Lines())
}

func TestBuild_DropsSelfLoopsAndDuplicates(t *testing.T) {
	g := Build(Input{
		File: mainFile,
		Nodes: []ir.TraceNode{
			node("a", ir.ExplicitAssumption, mainFile, 1),
			node("a2", ir.ImplicitAssumption, mainFile, 1),
			node("b", ir.ImplicitAssertion, mainFile, 2),
		},
		Edges: []ir.TraceEdge{
			edge("a", "a2"),
			edge("a", "b"),
			{Source: "a2", Target: "b", Label: "other-label"},
			edge("ghost", "b"),
		},
	})

	assert.Equal(t, []Edge{{Source: 1, Target: 2}}, g.Edges())
	assert.Equal(t, map[DropReason]int{
		ReasonSelfLoop:   1,
		ReasonDuplicate:  1,
		ReasonUnresolved: 1,
	}, g.DroppedReasonCounts())

	v, ok := g.Vertex(1)
	require.True(t, ok)
	assert.Equal(t, []ir.Category{ir.ExplicitAssumption, ir.ImplicitAssumption}, v.Categories.Sorted())
}

func TestBuild_UnknownFallbackAndContent(t *testing.T) {
	g := Build(Input{
		File: mainFile,
		Nodes: []ir.TraceNode{
			node("a", ir.ExplicitAssumption, mainFile, 1),
			node("b", ir.ImplicitAssertion, mainFile, 2),
			node("b-lib", ir.ImplicitAssertion, "lib.rs", 2),
		},
		Edges: []ir.TraceEdge{edge("a", "b")},
		Contents: []ir.LineContent{
			{Line: 1, Text: "    requires x > 0"},
			{Line: 2, Text: "\tassert!(y);  "},
			{Line: 3, Text: ""},
		},
	})

	v, ok := g.Vertex(1)
	require.True(t, ok)
	assert.Equal(t, "requires x > 0", v.Content)
	assert.Equal(t, 3, g.LineCount)
	assert.True(t, g.InRange(3))
	assert.False(t, g.InRange(4))
	assert.False(t, g.InRange(0))

	// Nodes of kind Other classify as Unknown and still become vertices.
	g2 := Build(Input{
		File:  mainFile,
		Nodes: []ir.TraceNode{node("a", ir.Unknown, mainFile, 1), node("b", ir.Infeasible, mainFile, 2)},
		Edges: []ir.TraceEdge{edge("a", "b")},
	})
	v1, _ := g2.Vertex(1)
	assert.True(t, v1.Has(ir.Unknown))
}

func TestBuild_ExternalDependencies(t *testing.T) {
	g := Build(Input{
		File: "src/main.rs",
		Nodes: []ir.TraceNode{
			node("t", ir.ImplicitAssertion, "main.rs", 10),
			node("s", ir.ExplicitAssumption, "main.rs", 4),
			node("l1", ir.ExplicitAssumption, "lib.rs", 30),
			node("l2", ir.ExplicitAssumption, "lib.rs", 12),
			node("l3", ir.ExplicitAssumption, "lib.rs", 30),
			node("u1", ir.ExplicitAssumption, "util.rs", 7),
			node("o", ir.ImplicitAssertion, "other.rs", 1),
		},
		Edges: []ir.TraceEdge{
			edge("s", "t"),
			edge("l1", "t"),
			edge("l2", "t"),
			edge("l3", "t"),
			edge("u1", "t"),
			edge("s", "o"),
		},
	})

	v, ok := g.Vertex(10)
	require.True(t, ok)
	assert.Equal(t, map[string][]int{"lib.rs": {12, 30}, "util.rs": {7}}, v.ExternalDeps)
	assert.Equal(t, 3, v.ExternalCount())
	assert.Equal(t, v.ExternalCount(), g.External().Count(10))
	assert.Equal(t, []FileLines{
		{File: "lib.rs", Lines: []int{12, 30}},
		{File: "util.rs", Lines: []int{7}},
	}, g.External().Disclose(10))

	// Cross-file sources never become intra-file edges.
	assert.Equal(t, []Edge{{Source: 4, Target: 10}}, g.Edges())
	assert.Equal(t, 1, g.DroppedReasonCounts()[ReasonOtherFile])
	assert.Equal(t, 4, g.Stats().ExternalRelations)
}

func TestBuild_Invariants(t *testing.T) {
	nodes := []ir.TraceNode{
		node("a", ir.ExplicitAssumption, mainFile, 1),
		node("b", ir.ExplicitAssertion, mainFile, 2),
		node("c", ir.ExplicitAssertion, mainFile, 3),
		node("d", ir.ImplicitAssertion, mainFile, 4),
		node("e", ir.ExplicitAssertion, mainFile, 5),
		node("f", ir.ImplicitAssumption, mainFile, 6),
	}
	edges := []ir.TraceEdge{
		edge("a", "b"), edge("b", "c"), edge("c", "b"), edge("c", "d"),
		edge("e", "d"), edge("f", "e"), edge("b", "d"), edge("d", "e"),
		edge("a", "d"), edge("a", "d"),
	}
	g := Build(Input{File: mainFile, Nodes: nodes, Edges: edges})

	rawParents := make(map[int][]int)
	for _, e := range g.RawEdges() {
		assert.NotEqual(t, e.Source, e.Target, "raw self edge")
		rawParents[e.Target] = append(rawParents[e.Target], e.Source)
	}

	seen := make(map[Edge]bool)
	for _, e := range g.Edges() {
		assert.NotEqual(t, e.Source, e.Target, "resolved self edge")
		assert.False(t, seen[e], "duplicate edge %v", e)
		seen[e] = true

		_, okS := g.Vertex(e.Source)
		_, okT := g.Vertex(e.Target)
		assert.True(t, okS && okT, "edge endpoints must be vertices")
	}

	for _, e := range g.RawEdges() {
		_, ok := g.Vertex(e.Target)
		assert.True(t, ok, "bypass must keep target %d", e.Target)
	}

	// Lines 2 and 3 form a cycle of explicit assertions; every other resolved
	// source is either not an explicit assertion or has no raw ancestor.
	for _, e := range g.Edges() {
		v, _ := g.Vertex(e.Source)
		if !v.Has(ir.ExplicitAssertion) {
			continue
		}
		if e.Source == 2 || e.Source == 3 {
			continue
		}
		assert.Empty(t, rawParents[e.Source], "explicit source %d should have been bypassed", e.Source)
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	g := Build(Input{
		File: mainFile,
		Nodes: []ir.TraceNode{
			node("a", ir.ExplicitAssumption, mainFile, 1),
			node("b", ir.ExplicitAssertion, mainFile, 2),
			node("c", ir.ImplicitAssertion, mainFile, 3),
			node("x", ir.ExplicitAssumption, "lib.rs", 8),
		},
		Edges:    []ir.TraceEdge{edge("a", "b"), edge("b", "c"), edge("x", "c"), edge("x", "a")},
		Contents: []ir.LineContent{{Line: 1, Text: "a"}, {Line: 2, Text: "b"}, {Line: 3, Text: "c"}},
	})

	r := Restore(g.Snapshot())
	assert.Equal(t, g.Lines(), r.Lines())
	assert.Equal(t, g.Edges(), r.Edges())
	assert.Equal(t, g.RawEdges(), r.RawEdges())
	assert.Equal(t, g.LineCount, r.LineCount)
	assert.Equal(t, g.External().Disclose(3), r.External().Disclose(3))
	assert.Equal(t, g.Parents(3), r.Parents(3))
}

func TestSameFile(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"main.rs", "main.rs", true},
		{"src/main.rs", "main.rs", true},
		{"./src/main.rs", "src/main.rs", true},
		{"/home/u/proj/src/main.rs", "src/main.rs", true},
		{`src\main.rs`, "src/main.rs", true},
		{"src/main.rs", "test/main.rs", false},
		{"lib.rs", "main.rs", false},
		{"", "main.rs", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, SameFile(tt.a, tt.b))
		})
	}
}
