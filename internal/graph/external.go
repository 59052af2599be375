package graph

import "sort"

// ExternalIndex records, for each analyzed-file line, the lines of other
// files that justify it. It never contributes to intra-file traversal.
type ExternalIndex struct {
	byLine map[int]map[string][]int
}

func newExternalIndex() *ExternalIndex {
	return &ExternalIndex{byLine: make(map[int]map[string][]int)}
}

// add inserts src into the sorted list for (target, file), keeping it distinct.
func (x *ExternalIndex) add(target int, file string, src int) bool {
	files := x.byLine[target]
	if files == nil {
		files = make(map[string][]int)
		x.byLine[target] = files
	}
	lines := files[file]
	i := sort.SearchInts(lines, src)
	if i < len(lines) && lines[i] == src {
		return false
	}
	lines = append(lines, 0)
	copy(lines[i+1:], lines[i:])
	lines[i] = src
	files[file] = lines
	return true
}

// Deps returns a copy of the per-file lines justifying line.
func (x *ExternalIndex) Deps(line int) map[string][]int {
	files := x.byLine[line]
	if len(files) == 0 {
		return nil
	}
	out := make(map[string][]int, len(files))
	for f, lines := range files {
		out[f] = append([]int(nil), lines...)
	}
	return out
}

// Count sums the per-file list lengths for line.
func (x *ExternalIndex) Count(line int) int {
	n := 0
	for _, lines := range x.byLine[line] {
		n += len(lines)
	}
	return n
}

// Disclose lists the external dependencies of line ordered by file name.
func (x *ExternalIndex) Disclose(line int) []FileLines {
	files := x.byLine[line]
	out := make([]FileLines, 0, len(files))
	for f, lines := range files {
		out = append(out, FileLines{File: f, Lines: append([]int(nil), lines...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

// Lines returns the target lines that have external dependencies, ascending.
func (x *ExternalIndex) Lines() []int {
	out := make([]int, 0, len(x.byLine))
	for l := range x.byLine {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}
