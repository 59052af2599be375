package analysis

import (
	"fmt"
	"sort"
	"strings"

	"proofdeps/internal/graph"
	"proofdeps/internal/ir"
	"proofdeps/internal/retrieval"
)

// Direction is the side of the selection a query reports.
type Direction int

const (
	// Causes reports what justifies the selected line (incoming edges).
	Causes Direction = iota
	// Effects reports what the selected line justifies (outgoing edges).
	Effects
)

func (d Direction) String() string {
	if d == Effects {
		return "effects"
	}
	return "causes"
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "causes", "":
		return Causes, nil
	case "effects":
		return Effects, nil
	}
	return Causes, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Direction) walk() retrieval.Direction {
	if d == Effects {
		return retrieval.Outgoing
	}
	return retrieval.Incoming
}

// Depth selects whether indirect neighbours are reported.
type Depth int

const (
	DirectOnly Depth = iota
	DirectPlusIndirect
)

func (d Depth) String() string {
	if d == DirectPlusIndirect {
		return "indirect"
	}
	return "direct"
}

func ParseDepth(s string) (Depth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "":
		return DirectOnly, nil
	case "indirect", "all":
		return DirectPlusIndirect, nil
	}
	return DirectOnly, fmt.Errorf("unknown depth %q", s)
}

func (d Depth) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Depth) UnmarshalText(b []byte) error {
	v, err := ParseDepth(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Filter is the set of enabled categories. The zero value enables nothing;
// use NewFilter for the default of everything enabled.
type Filter struct {
	enabled ir.CategorySet
}

// NewFilter enables every category except the disabled ones.
func NewFilter(disabled ...ir.Category) Filter {
	f := Filter{enabled: ir.NewCategorySet(ir.AllCategories...)}
	for _, c := range disabled {
		delete(f.enabled, c)
	}
	return f
}

func (f Filter) Enabled(c ir.Category) bool {
	return f.enabled.Has(c)
}

// Enable returns a copy of f with c enabled.
func (f Filter) Enable(c ir.Category) Filter {
	out := Filter{enabled: f.enabled.Clone()}
	out.enabled.Add(c)
	return out
}

// Disable returns a copy of f with c disabled.
func (f Filter) Disable(c ir.Category) Filter {
	out := Filter{enabled: f.enabled.Clone()}
	delete(out.enabled, c)
	return out
}

// Toggle returns a copy of f with c flipped.
func (f Filter) Toggle(c ir.Category) Filter {
	if f.Enabled(c) {
		return f.Disable(c)
	}
	return f.Enable(c)
}

// EnabledCategories lists the enabled categories in display order.
func (f Filter) EnabledCategories() []ir.Category {
	return f.enabled.Sorted()
}

// Allows reports whether a vertex is visible: at least one of its
// categories must be enabled.
func (f Filter) Allows(v *graph.Vertex) bool {
	if v == nil {
		return false
	}
	for c := range v.Categories {
		if f.enabled.Has(c) {
			return true
		}
	}
	return false
}

// Result is the answer to one query.
type Result struct {
	Line      int
	Direct    []int
	Indirect  []int
	Direction Direction
	// OutOfRange is set when Line is not a line of the analyzed document.
	OutOfRange bool
}

// Engine answers highlight queries against one graph.
//
// Its three mode fields are plain values; Query is a pure function of the
// graph, the selected line and those fields.
type Engine struct {
	Direction Direction
	Depth     Depth
	Filter    Filter

	g *graph.Graph
}

// NewEngine creates an engine with all categories enabled, reporting direct causes.
func NewEngine(g *graph.Graph) *Engine {
	return &Engine{Direction: Causes, Depth: DirectOnly, Filter: NewFilter(), g: g}
}

func (e *Engine) Graph() *graph.Graph {
	return e.g
}

// Query computes the visible direct and indirect neighbours of line.
func (e *Engine) Query(line int) Result {
	res := Result{Line: line, Direct: []int{}, Indirect: []int{}, Direction: e.Direction}
	if e.g == nil {
		return res
	}
	if !e.g.InRange(line) {
		res.OutOfRange = true
		return res
	}
	if _, ok := e.g.Vertex(line); !ok {
		return res
	}

	// Traverse the unfiltered graph; filtering only hides lines afterwards.
	direct := retrieval.Neighbours(e.g, line, e.Direction.walk())
	directSet := make(map[int]bool, len(direct))
	for _, l := range direct {
		directSet[l] = true
	}
	res.Direct = e.visible(direct, line)

	if e.Depth == DirectPlusIndirect {
		var indirect []int
		for _, l := range retrieval.Closure(e.g, line, e.Direction.walk()) {
			if !directSet[l] {
				indirect = append(indirect, l)
			}
		}
		res.Indirect = e.visible(indirect, line)
	}
	return res
}

func (e *Engine) visible(lines []int, selected int) []int {
	out := make([]int, 0, len(lines))
	for _, l := range lines {
		if l == selected {
			continue
		}
		v, _ := e.g.Vertex(l)
		if e.Filter.Allows(v) {
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}
