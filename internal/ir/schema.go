package ir

// Kind is the obligation kind reported by the verifier for a trace node.
type Kind string

const (
	KindAssumption Kind = "Assumption"
	KindAssertion  Kind = "Assertion"
	KindInfeasible Kind = "Infeasible"
	KindOther      Kind = "Other"
)

// Position is where a trace node originated in source code.
type Position struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// TraceNode is one proof-obligation fact emitted by the verifier.
type TraceNode struct {
	ID       string   `json:"id"`
	Kind     Kind     `json:"kind"`
	Subtype  string   `json:"subtype"`
	Label    string   `json:"label,omitempty"`
	Category Category `json:"category"`
	Position Position `json:"position"`
	// HasPosition is false when the record's position descriptor could not be parsed.
	// Such nodes never reach the line graph.
	HasPosition bool `json:"has_position"`
}

// TraceEdge records that Target was established using Source.
type TraceEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// LineContent is the source text recorded for one line of the analyzed file.
type LineContent struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}
