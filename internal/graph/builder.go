package graph

import (
	"strings"

	"proofdeps/internal/ir"
)

// Input is everything needed to build the line graph of one file.
type Input struct {
	// File is the analyzed source file, as named in position descriptors.
	File     string
	Nodes    []ir.TraceNode
	Edges    []ir.TraceEdge
	Contents []ir.LineContent
}

// Build projects trace records onto the lines of in.File, resolves bypasses
// through explicit assertions and indexes cross-file justifications.
func Build(in Input) *Graph {
	g := newGraph(in.File)
	g.stats.TraceEdges = len(in.Edges)

	positions := make(map[string]ir.Position, len(in.Nodes))
	categories := make(map[int]ir.CategorySet)
	for _, n := range in.Nodes {
		if !n.HasPosition {
			continue
		}
		positions[n.ID] = n.Position
		if !SameFile(n.Position.File, in.File) {
			continue
		}
		set := categories[n.Position.Line]
		if set == nil {
			set = ir.NewCategorySet()
			categories[n.Position.Line] = set
		}
		set.Add(n.Category)
	}

	g.rawEdges = g.project(in.Edges, positions)
	g.stats.RawEdges = len(g.rawEdges)

	contents := make(map[int]string, len(in.Contents))
	for _, c := range in.Contents {
		contents[c.Line] = c.Text
		if c.Line > g.LineCount {
			g.LineCount = c.Line
		}
	}

	// Every raw endpoint is a vertex, so lines bypassed as sources stay visible.
	for _, e := range g.rawEdges {
		g.addVertex(e.Source, categories, contents)
		g.addVertex(e.Target, categories, contents)
	}

	isExplicitAssertion := func(line int) bool {
		v, ok := g.vertices[line]
		return ok && v.Has(ir.ExplicitAssertion)
	}
	g.setEdges(resolveBypass(g.rawEdges, isExplicitAssertion))
	g.stats.Edges = len(g.edges)

	return g
}

// project maps trace edges onto distinct intra-file line pairs and feeds
// cross-file relations into the external index.
func (g *Graph) project(edges []ir.TraceEdge, positions map[string]ir.Position) []LabeledEdge {
	seen := make(map[Edge]bool)
	var out []LabeledEdge
	for _, e := range edges {
		src, okSrc := positions[e.Source]
		dst, okDst := positions[e.Target]
		if !okSrc || !okDst {
			g.stats.drop(ReasonUnresolved)
			continue
		}
		if !SameFile(dst.File, g.File) {
			g.stats.drop(ReasonOtherFile)
			continue
		}
		if !SameFile(src.File, g.File) {
			g.external.add(dst.Line, src.File, src.Line)
			g.stats.ExternalRelations++
			continue
		}
		if src.Line == dst.Line {
			g.stats.drop(ReasonSelfLoop)
			continue
		}
		key := Edge{Source: src.Line, Target: dst.Line}
		if seen[key] {
			g.stats.drop(ReasonDuplicate)
			continue
		}
		seen[key] = true
		out = append(out, LabeledEdge{Source: src.Line, Target: dst.Line, Label: e.Label})
	}
	sortLabeled(out)
	return out
}

func (g *Graph) addVertex(line int, categories map[int]ir.CategorySet, contents map[int]string) {
	if _, ok := g.vertices[line]; ok {
		return
	}
	cats := ir.NewCategorySet()
	if set := categories[line]; len(set) > 0 {
		cats.Union(set)
	} else {
		cats.Add(ir.Unknown)
	}
	g.vertices[line] = &Vertex{
		Line:         line,
		Categories:   cats,
		Content:      strings.TrimSpace(contents[line]),
		ExternalDeps: g.external.Deps(line),
	}
}
