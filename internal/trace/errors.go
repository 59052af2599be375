package trace

import "errors"

var (
	// ErrUnknownSchema is returned for a schema name no parser supports.
	ErrUnknownSchema = errors.New("unknown trace schema")

	// ErrMalformedRecord marks a row that cannot be split into the expected fields.
	ErrMalformedRecord = errors.New("malformed trace record")

	// ErrBadPosition marks a position descriptor that is neither
	// "<name> @ line <N>" nor "(<name> @ line <N>)".
	ErrBadPosition = errors.New("unparseable position descriptor")

	errBadQuote = errors.New("unbalanced quote")
)

// RejectReason classifies why a row was skipped.
type RejectReason string

const (
	ReasonFieldCount  RejectReason = "field_count"
	ReasonEmptyID     RejectReason = "empty_id"
	ReasonBadPosition RejectReason = "bad_position"
	ReasonDuplicateID RejectReason = "duplicate_id"
	ReasonBadLine     RejectReason = "bad_line_number"
	ReasonBadQuoting  RejectReason = "bad_quoting"
)

// Report counts what happened to the rows of one input file.
type Report struct {
	Accepted int
	Rejected map[RejectReason]int
}

func newReport() Report {
	return Report{Rejected: make(map[RejectReason]int)}
}

func (r *Report) reject(reason RejectReason) {
	if r.Rejected == nil {
		r.Rejected = make(map[RejectReason]int)
	}
	r.Rejected[reason]++
}

// RejectedTotal sums rejections over all reasons.
func (r Report) RejectedTotal() int {
	n := 0
	for _, c := range r.Rejected {
		n += c
	}
	return n
}
