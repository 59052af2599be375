package trace

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"proofdeps/internal/ir"
)

const edgeFields = 3

// ReadEdges parses comma-delimited "sourceId,targetId,label" rows after a
// single header row. Rows with the wrong field count are skipped.
func ReadEdges(r io.Reader, logger *slog.Logger) ([]ir.TraceEdge, Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	report := newReport()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var edges []ir.TraceEdge
	header := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				logger.Debug("skipping edge record", "row", perr.Line, "error", err)
				report.reject(ReasonBadQuoting)
				header = false
				continue
			}
			return nil, report, fmt.Errorf("read edge records: %w", err)
		}
		if header {
			header = false
			continue
		}

		if len(rec) != edgeFields {
			line, _ := cr.FieldPos(0)
			logger.Debug("skipping edge record", "row", line, "fields", len(rec))
			report.reject(ReasonFieldCount)
			continue
		}
		src := strings.TrimSpace(rec[0])
		dst := strings.TrimSpace(rec[1])
		if src == "" || dst == "" {
			report.reject(ReasonEmptyID)
			continue
		}

		edges = append(edges, ir.TraceEdge{
			Source: src,
			Target: dst,
			Label:  strings.TrimSpace(rec[2]),
		})
		report.Accepted++
	}
	return edges, report, nil
}
