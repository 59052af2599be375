package graph

import "sort"

// resolveBypass credits each raw edge to the real sources of its source line.
//
// An explicit assertion is itself proved from something else, so an edge
// leaving one is re-attached to the assertion's own upstream causes,
// transitively. An assertion with no parents stays its own source; when the
// upstream chain loops back onto the current resolution path, the line where
// the loop closes is credited instead of walking the cycle again.
func resolveBypass(raw []LabeledEdge, isExplicitAssertion func(int) bool) []Edge {
	parents := make(map[int][]int)
	for _, e := range raw {
		parents[e.Target] = append(parents[e.Target], e.Source)
	}
	for l := range parents {
		sort.Ints(parents[l])
	}

	r := &bypassResolver{parents: parents, isExplicit: isExplicitAssertion, cache: make(map[int][]int)}

	seen := make(map[Edge]bool)
	var out []Edge
	for _, e := range raw {
		for _, src := range r.realSources(e.Source) {
			if src == e.Target {
				continue
			}
			key := Edge{Source: src, Target: e.Target}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

type bypassResolver struct {
	parents    map[int][]int
	isExplicit func(int) bool
	cache      map[int][]int
}

type bypassFrame struct {
	line    int
	next    int
	sources map[int]bool
}

// realSources runs an explicit-stack DFS over the reverse adjacency.
// Each call starts with a fresh path and memo, so the result for a line does
// not depend on which edge asked first.
func (r *bypassResolver) realSources(line int) []int {
	if !r.isExplicit(line) {
		return []int{line}
	}
	if res, ok := r.cache[line]; ok {
		return res
	}

	memo := make(map[int][]int)
	onPath := map[int]bool{line: true}
	stack := []*bypassFrame{{line: line, sources: make(map[int]bool)}}
	var result []int

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		ps := r.parents[top.line]

		if top.next < len(ps) {
			p := ps[top.next]
			top.next++
			switch {
			case !r.isExplicit(p):
				top.sources[p] = true
			case memo[p] != nil:
				for _, s := range memo[p] {
					top.sources[s] = true
				}
			case onPath[p]:
				top.sources[p] = true
			default:
				onPath[p] = true
				stack = append(stack, &bypassFrame{line: p, sources: make(map[int]bool)})
			}
			continue
		}

		stack = stack[:len(stack)-1]
		onPath[top.line] = false

		res := make([]int, 0, len(top.sources))
		for s := range top.sources {
			res = append(res, s)
		}
		if len(res) == 0 {
			res = append(res, top.line)
		}
		sort.Ints(res)
		memo[top.line] = res

		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			for _, s := range res {
				parent.sources[s] = true
			}
		} else {
			result = res
		}
	}

	r.cache[line] = result
	return result
}
