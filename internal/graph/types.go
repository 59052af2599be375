package graph

import "proofdeps/internal/ir"

type DropReason string

const (
	ReasonUnresolved DropReason = "unresolved_endpoint"
	ReasonOtherFile  DropReason = "other_file"
	ReasonSelfLoop   DropReason = "self_loop"
	ReasonDuplicate  DropReason = "duplicate"
)

// Vertex is one line of the analyzed file that takes part in at least one
// intra-file justification.
type Vertex struct {
	Line       int            `json:"line"`
	Categories ir.CategorySet `json:"categories"`
	Content    string         `json:"content"`
	// ExternalDeps maps another file's name to the sorted, distinct lines in
	// that file that justify this vertex.
	ExternalDeps map[string][]int `json:"external_deps,omitempty"`
}

// Has reports whether the vertex carries category c.
func (v *Vertex) Has(c ir.Category) bool {
	return v.Categories.Has(c)
}

// ExternalCount is the number of distinct cross-file lines justifying v.
func (v *Vertex) ExternalCount() int {
	n := 0
	for _, lines := range v.ExternalDeps {
		n += len(lines)
	}
	return n
}

// Edge is a directed justification between two lines: Target was
// established using Source.
type Edge struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

// LabeledEdge is a projected edge before bypass resolution, carrying the
// first trace label seen for the pair.
type LabeledEdge struct {
	Source int    `json:"source"`
	Target int    `json:"target"`
	Label  string `json:"label"`
}

// FileLines is one entry of an external-dependency disclosure.
type FileLines struct {
	File  string `json:"file"`
	Lines []int  `json:"lines"`
}

// Snapshot is the serializable state of a built graph.
type Snapshot struct {
	File      string
	LineCount int
	Vertices  []*Vertex
	Edges     []Edge
	RawEdges  []LabeledEdge
	// External holds every cross-file relation keyed by target line,
	// including targets that are not vertices.
	External map[int]map[string][]int
}
