package graph

import (
	"path"
	"sort"
	"strings"
)

// Graph is the line-level dependency graph of one analyzed file.
//
// A Graph is built once per analysis run and never modified afterwards;
// slices returned by its accessors are shared and must not be mutated.
type Graph struct {
	File      string
	LineCount int

	vertices map[int]*Vertex
	edges    []Edge
	rawEdges []LabeledEdge
	parents  map[int][]int
	children map[int][]int
	external *ExternalIndex
	stats    BuildStats
}

func newGraph(file string) *Graph {
	return &Graph{
		File:     file,
		vertices: make(map[int]*Vertex),
		parents:  make(map[int][]int),
		children: make(map[int][]int),
		external: newExternalIndex(),
		stats:    newBuildStats(),
	}
}

// Vertex returns the vertex for line, if the line is part of the graph.
func (g *Graph) Vertex(line int) (*Vertex, bool) {
	if g == nil {
		return nil, false
	}
	v, ok := g.vertices[line]
	return v, ok
}

// Vertices returns all vertices ordered by line.
func (g *Graph) Vertices() []*Vertex {
	out := make([]*Vertex, 0, len(g.vertices))
	for _, l := range g.Lines() {
		out = append(out, g.vertices[l])
	}
	return out
}

// Lines returns the vertex lines in ascending order.
func (g *Graph) Lines() []int {
	out := make([]int, 0, len(g.vertices))
	for l := range g.vertices {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Edges returns the resolved edges ordered by (source, target).
func (g *Graph) Edges() []Edge {
	return g.edges
}

// RawEdges returns the projected edges before bypass resolution.
func (g *Graph) RawEdges() []LabeledEdge {
	return g.rawEdges
}

// Parents returns the sources of resolved edges into line, ascending.
func (g *Graph) Parents(line int) []int {
	return g.parents[line]
}

// Children returns the targets of resolved edges out of line, ascending.
func (g *Graph) Children(line int) []int {
	return g.children[line]
}

// HasEdge reports whether the resolved edge source -> target exists.
func (g *Graph) HasEdge(source, target int) bool {
	kids := g.children[source]
	i := sort.SearchInts(kids, target)
	return i < len(kids) && kids[i] == target
}

// External exposes the cross-file dependency index.
func (g *Graph) External() *ExternalIndex {
	return g.external
}

// Stats reports what the build kept and dropped.
func (g *Graph) Stats() BuildStats {
	return g.stats
}

// InRange reports whether line is a valid line of the analyzed document.
// Without line contents only the lower bound is known.
func (g *Graph) InRange(line int) bool {
	if line < 1 {
		return false
	}
	return g.LineCount == 0 || line <= g.LineCount
}

// Snapshot returns the graph's serializable state.
func (g *Graph) Snapshot() Snapshot {
	ext := make(map[int]map[string][]int, len(g.external.byLine))
	for _, l := range g.external.Lines() {
		ext[l] = g.external.Deps(l)
	}
	return Snapshot{
		File:      g.File,
		LineCount: g.LineCount,
		Vertices:  g.Vertices(),
		Edges:     append([]Edge(nil), g.edges...),
		RawEdges:  append([]LabeledEdge(nil), g.rawEdges...),
		External:  ext,
	}
}

// Restore rebuilds a graph from a snapshot, e.g. one loaded from storage.
// Build statistics are not part of a snapshot and come back empty.
func Restore(s Snapshot) *Graph {
	g := newGraph(s.File)
	g.LineCount = s.LineCount
	for _, v := range s.Vertices {
		g.vertices[v.Line] = v
	}
	for target, files := range s.External {
		for f, lines := range files {
			for _, l := range lines {
				g.external.add(target, f, l)
			}
		}
	}
	g.rawEdges = append([]LabeledEdge(nil), s.RawEdges...)
	sortLabeled(g.rawEdges)
	g.setEdges(s.Edges)
	return g
}

// setEdges installs the resolved edge set and its adjacency indexes.
func (g *Graph) setEdges(edges []Edge) {
	g.edges = append([]Edge(nil), edges...)
	sort.Slice(g.edges, func(i, j int) bool {
		if g.edges[i].Source == g.edges[j].Source {
			return g.edges[i].Target < g.edges[j].Target
		}
		return g.edges[i].Source < g.edges[j].Source
	})
	for _, e := range g.edges {
		g.children[e.Source] = append(g.children[e.Source], e.Target)
		g.parents[e.Target] = append(g.parents[e.Target], e.Source)
	}
	for l := range g.parents {
		sort.Ints(g.parents[l])
	}
}

func sortLabeled(edges []LabeledEdge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Source == edges[j].Source {
			return edges[i].Target < edges[j].Target
		}
		return edges[i].Source < edges[j].Source
	})
}

// SameFile reports whether two position file names refer to the same file.
// Names without a directory are compared by base name; otherwise one path
// may be a suffix of the other.
func SameFile(a, b string) bool {
	a, b = cleanName(a), cleanName(b)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if !strings.Contains(a, "/") || !strings.Contains(b, "/") {
		return path.Base(a) == path.Base(b)
	}
	return strings.HasSuffix(a, "/"+b) || strings.HasSuffix(b, "/"+a)
}

func cleanName(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, `\`, "/"))
	if s == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(s), "./")
}
