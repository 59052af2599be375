package pipeline

import (
	"encoding/csv"
	"io"
	"strconv"

	"proofdeps/internal/graph"
)

var derivedHeader = []string{"source", "target", "label"}

// WriteLineEdges writes the derived line-level edge file. edges are expected
// to be distinct, free of self loops and sorted, as Graph.RawEdges returns them.
func WriteLineEdges(w io.Writer, edges []graph.LabeledEdge) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(derivedHeader); err != nil {
		return err
	}
	for _, e := range edges {
		if err := cw.Write([]string{strconv.Itoa(e.Source), strconv.Itoa(e.Target), e.Label}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
