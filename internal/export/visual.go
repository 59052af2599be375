package export

import (
	"encoding/json"
	"io"

	"proofdeps/internal/graph"
	"proofdeps/internal/ir"
	"proofdeps/internal/retrieval"
)

// VisualNode is one vertex as the graph panel draws it.
type VisualNode struct {
	ID         string        `json:"id"`
	Line       int           `json:"line"`
	Label      string        `json:"label"`
	Categories []ir.Category `json:"categories"`
	Primary    ir.Category   `json:"primary"`
	External   int           `json:"external"`
}

type VisualEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Visual is the payload handed to the visualization layer. Highlighting is
// not part of it; the panel asks the query protocol for that.
type Visual struct {
	File      string       `json:"file"`
	LineCount int          `json:"lineCount"`
	Nodes     []VisualNode `json:"nodes"`
	Edges     []VisualEdge `json:"edges"`
}

// BuildVisual converts the whole graph.
func BuildVisual(g *graph.Graph) Visual {
	return buildVisual(g, g.Lines())
}

// BuildNeighbourhood converts only the lines within hops of seed.
func BuildNeighbourhood(g *graph.Graph, seed, hops int) Visual {
	cfg := retrieval.DefaultConfig()
	cfg.MaxHops = hops
	sg := retrieval.Extract(g, seed, cfg)
	return buildVisual(g, sg.Lines)
}

func buildVisual(g *graph.Graph, lines []int) Visual {
	out := Visual{
		File:      g.File,
		LineCount: g.LineCount,
		Nodes:     make([]VisualNode, 0, len(lines)),
		Edges:     []VisualEdge{},
	}
	keep := make(map[int]bool, len(lines))
	for _, l := range lines {
		v, ok := g.Vertex(l)
		if !ok {
			continue
		}
		keep[l] = true
		out.Nodes = append(out.Nodes, VisualNode{
			ID:         lineID(l),
			Line:       l,
			Label:      nodeLabel(v),
			Categories: v.Categories.Sorted(),
			Primary:    PrimaryCategory(v),
			External:   v.ExternalCount(),
		})
	}
	for _, e := range g.Edges() {
		if keep[e.Source] && keep[e.Target] {
			out.Edges = append(out.Edges, VisualEdge{Source: lineID(e.Source), Target: lineID(e.Target)})
		}
	}
	return out
}

// WriteJSON encodes v with indentation.
func WriteJSON(w io.Writer, v Visual) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
