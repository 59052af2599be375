package trace

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"proofdeps/internal/ir"
)

const maxRecordSize = 1024 * 1024

// NodeReader parses '#'-delimited node records against a set of schemas.
type NodeReader struct {
	schemas []Schema
	logger  *slog.Logger
}

// NewNodeReader creates a reader for the configured schema name ("auto", "v1", "v2").
func NewNodeReader(schema string, logger *slog.Logger) (*NodeReader, error) {
	schemas, err := Schemas(schema)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &NodeReader{schemas: schemas, logger: logger}, nil
}

// Read parses all node records from r.
//
// Rows that match no schema are rejected outright. Nodes whose position
// descriptor cannot be parsed are still returned, with HasPosition unset, so
// that edges pointing at them are reported as unresolved rather than missing.
func (nr *NodeReader) Read(r io.Reader) ([]ir.TraceNode, Report, error) {
	report := newReport()
	seen := make(map[string]bool)
	var nodes []ir.TraceNode

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		node, reason, err := nr.parseRecord(text)
		if err != nil {
			nr.logger.Debug("skipping node record", "row", lineNo, "reason", reason, "error", err)
			report.reject(reason)
			if reason != ReasonBadPosition {
				continue
			}
		}
		if seen[node.ID] {
			report.reject(ReasonDuplicateID)
			continue
		}
		seen[node.ID] = true
		if node.HasPosition {
			report.Accepted++
		}
		nodes = append(nodes, node)
	}
	if err := scanner.Err(); err != nil {
		return nil, report, fmt.Errorf("read node records: %w", err)
	}
	return nodes, report, nil
}

// parseRecord splits one row. A bad position is reported together with a
// usable node; every other error leaves the node empty.
func (nr *NodeReader) parseRecord(text string) (ir.TraceNode, RejectReason, error) {
	fields := strings.Split(text, "#")
	schema, ok := match(nr.schemas, len(fields))
	if !ok {
		return ir.TraceNode{}, ReasonFieldCount, fmt.Errorf("%w: %d fields", ErrMalformedRecord, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	id := fields[0]
	if id == "" {
		return ir.TraceNode{}, ReasonEmptyID, fmt.Errorf("%w: empty id", ErrMalformedRecord)
	}

	kind := ParseKind(fields[1])
	node := ir.TraceNode{
		ID:       id,
		Kind:     kind,
		Subtype:  fields[2],
		Label:    fields[3],
		Category: schema.Classify(kind, fields[2]),
	}

	pos, err := ParsePosition(fields[schema.Fields-1])
	if err != nil {
		return node, ReasonBadPosition, err
	}
	node.Position = pos
	node.HasPosition = true
	return node, "", nil
}
