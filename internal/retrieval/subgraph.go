package retrieval

import (
	"sort"

	"proofdeps/internal/graph"
)

// Direction selects which side of a line the walk follows.
type Direction int

const (
	// Incoming follows parents: what justifies the line.
	Incoming Direction = iota
	// Outgoing follows children: what the line justifies.
	Outgoing
)

// Config controls how neighbourhood subgraphs are extracted.
type Config struct {
	MaxHops   int
	Direction Direction
	// Both ignores Direction and walks edges either way.
	Both bool
}

func DefaultConfig() Config {
	return Config{MaxHops: 2, Both: true}
}

// Subgraph is the retrieval result used by the visualization export.
type Subgraph struct {
	MaxHops int
	Seed    int
	Lines   []int
	Hops    map[int]int
	Edges   []graph.Edge
}

// Neighbours returns the immediate neighbours of line in the given direction.
func Neighbours(g *graph.Graph, line int, dir Direction) []int {
	if g == nil {
		return nil
	}
	if dir == Outgoing {
		return g.Children(line)
	}
	return g.Parents(line)
}

// Closure returns every line reachable from line in the given direction,
// excluding line itself unless it lies on a cycle through itself. The result
// is sorted.
func Closure(g *graph.Graph, line int, dir Direction) []int {
	if g == nil {
		return nil
	}
	visited := make(map[int]bool)
	queue := append([]int(nil), Neighbours(g, line, dir)...)
	for _, l := range queue {
		visited[l] = true
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range Neighbours(g, cur, dir) {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}

	out := make([]int, 0, len(visited))
	for l := range visited {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Extract returns the lines within cfg.MaxHops of seed and the edges between them.
func Extract(g *graph.Graph, seed int, cfg Config) *Subgraph {
	if cfg.MaxHops < 0 {
		cfg.MaxHops = 0
	}
	sg := &Subgraph{MaxHops: cfg.MaxHops, Seed: seed, Hops: map[int]int{}}
	if g == nil {
		return sg
	}
	if _, ok := g.Vertex(seed); !ok {
		return sg
	}

	hops := map[int]int{seed: 0}
	queue := []queueItem{{line: seed, depth: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= cfg.MaxHops {
			continue
		}
		for _, next := range step(g, cur.line, cfg) {
			if _, seen := hops[next]; seen {
				continue
			}
			hops[next] = cur.depth + 1
			queue = append(queue, queueItem{line: next, depth: cur.depth + 1})
		}
	}

	for _, e := range g.Edges() {
		_, okS := hops[e.Source]
		_, okT := hops[e.Target]
		if okS && okT {
			sg.Edges = append(sg.Edges, e)
		}
	}

	sg.Hops = hops
	sg.Lines = sortedKeys(hops)
	return sg
}

type queueItem struct {
	line  int
	depth int
}

func step(g *graph.Graph, line int, cfg Config) []int {
	if !cfg.Both {
		return Neighbours(g, line, cfg.Direction)
	}
	return append(append([]int(nil), g.Parents(line)...), g.Children(line)...)
}

func sortedKeys[T any](m map[int]T) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
