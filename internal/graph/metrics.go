package graph

// BuildStats counts what happened to the raw trace edges during a build.
type BuildStats struct {
	TraceEdges        int
	RawEdges          int
	Edges             int
	ExternalRelations int
	Dropped           map[DropReason]int
}

func newBuildStats() BuildStats {
	return BuildStats{Dropped: make(map[DropReason]int)}
}

func (s *BuildStats) drop(reason DropReason) {
	s.Dropped[reason]++
}

// DroppedReasonCounts returns a copy of the drop counts, omitting zeroes.
func (g *Graph) DroppedReasonCounts() map[DropReason]int {
	counts := make(map[DropReason]int)
	if g == nil {
		return counts
	}
	for reason, n := range g.stats.Dropped {
		if n > 0 {
			counts[reason] = n
		}
	}
	return counts
}
