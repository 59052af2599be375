package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"proofdeps/internal/analysis"
	"proofdeps/internal/graph"
	"proofdeps/internal/ir"
	"proofdeps/internal/session"
)

// Inbound message types.
const (
	TypeSelect         = "select"
	TypeMode           = "mode"
	TypeToggleCategory = "toggleCategory"
	TypeExternal       = "external"
	TypeOpenFile       = "openFile"
)

// Outbound message types not shared with inbound ones.
const (
	TypeResult  = "result"
	TypeError   = "error"
	TypeSession = "session"
)

var ErrBadMessage = errors.New("bad message")

// SelectionIn asks for the dependencies of one line.
type SelectionIn struct {
	Line int `json:"line"`
	// Source is "pointer" (default) or "cursor".
	Source string `json:"source,omitempty"`
}

// Trigger maps the selection source onto a session trigger.
func (s SelectionIn) Trigger() session.Trigger {
	if s.Source == string(session.TriggerCursor) {
		return session.TriggerCursor
	}
	return session.TriggerPointer
}

// ResultOut is the answer to a selection.
type ResultOut struct {
	Line       int                `json:"line"`
	Direct     []int              `json:"direct"`
	Indirect   []int              `json:"indirect"`
	Direction  analysis.Direction `json:"direction"`
	Seq        uint64             `json:"seq,omitempty"`
	OutOfRange bool               `json:"outOfRange,omitempty"`
}

func NewResult(res analysis.Result, seq uint64) ResultOut {
	return ResultOut{
		Line:       res.Line,
		Direct:     nonNil(res.Direct),
		Indirect:   nonNil(res.Indirect),
		Direction:  res.Direction,
		Seq:        seq,
		OutOfRange: res.OutOfRange,
	}
}

func FromUpdate(u session.Update) ResultOut {
	return NewResult(u.Result, u.Seq)
}

// Disclosure lists the lines of one other file that justify a line.
type Disclosure struct {
	File  string `json:"file"`
	Lines []int  `json:"lines"`
}

// ExternalOut is the on-demand disclosure for one line.
type ExternalOut struct {
	Line  int          `json:"line"`
	Files []Disclosure `json:"files"`
}

func NewExternal(line int, deps []graph.FileLines) ExternalOut {
	out := ExternalOut{Line: line, Files: make([]Disclosure, 0, len(deps))}
	for _, d := range deps {
		out.Files = append(out.Files, Disclosure{File: d.File, Lines: nonNil(d.Lines)})
	}
	return out
}

// OpenFileRequest asks the host to navigate to a cross-file justification.
type OpenFileRequest struct {
	OpenFile string `json:"openFile"`
	Line     *int   `json:"line,omitempty"`
}

// ModeIn changes any subset of the query modes.
type ModeIn struct {
	Direction *analysis.Direction `json:"direction,omitempty"`
	Depth     *analysis.Depth     `json:"depth,omitempty"`
	// Categories, when present, replaces the enabled set.
	Categories []ir.Category `json:"categories,omitempty"`
}

// SessionOut describes the session a client is attached to.
type SessionOut struct {
	ID         string             `json:"id"`
	File       string             `json:"file"`
	LineCount  int                `json:"lineCount"`
	Vertices   int                `json:"vertices"`
	Direction  analysis.Direction `json:"direction"`
	Depth      analysis.Depth     `json:"depth"`
	Categories []ir.Category      `json:"categories"`
}

func NewSession(s *session.Session) SessionOut {
	dir, depth, filter := s.Modes()
	out := SessionOut{
		ID:         s.ID,
		Direction:  dir,
		Depth:      depth,
		Categories: filter.EnabledCategories(),
	}
	if g := s.Graph(); g != nil {
		out.File = g.File
		out.LineCount = g.LineCount
		out.Vertices = len(g.Lines())
	}
	return out
}

// Inbound is a client message. Only the fields of its Type are meaningful.
type Inbound struct {
	Type     string      `json:"type"`
	Line     int         `json:"line,omitempty"`
	Source   string      `json:"source,omitempty"`
	Category ir.Category `json:"category,omitempty"`
	OpenFile string      `json:"openFile,omitempty"`
	ModeIn
}

// Decode parses and validates one client message.
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %w", ErrBadMessage, err)
	}
	switch in.Type {
	case TypeSelect:
		if err := requireLine(data); err != nil {
			return Inbound{}, err
		}
	case TypeExternal:
		if in.Line <= 0 {
			return Inbound{}, fmt.Errorf("%w: %s needs a positive line", ErrBadMessage, in.Type)
		}
	case TypeToggleCategory:
		c, err := ir.ParseCategory(string(in.Category))
		if err != nil {
			return Inbound{}, fmt.Errorf("%w: %w", ErrBadMessage, err)
		}
		in.Category = c
	case TypeOpenFile:
		if in.OpenFile == "" {
			return Inbound{}, fmt.Errorf("%w: openFile needs a file", ErrBadMessage)
		}
	case TypeMode:
		for i, c := range in.Categories {
			parsed, err := ir.ParseCategory(string(c))
			if err != nil {
				return Inbound{}, fmt.Errorf("%w: %w", ErrBadMessage, err)
			}
			in.Categories[i] = parsed
		}
	default:
		return Inbound{}, fmt.Errorf("%w: unknown type %q", ErrBadMessage, in.Type)
	}
	return in, nil
}

// DecodeSelection parses a bare selection. Any integer line is accepted;
// lines outside the document come back as out-of-range results.
func DecodeSelection(data []byte) (SelectionIn, error) {
	var sel SelectionIn
	if err := json.Unmarshal(data, &sel); err != nil {
		return SelectionIn{}, fmt.Errorf("%w: %w", ErrBadMessage, err)
	}
	if err := requireLine(data); err != nil {
		return SelectionIn{}, err
	}
	return sel, nil
}

func requireLine(data []byte) error {
	var present struct {
		Line *int `json:"line"`
	}
	if err := json.Unmarshal(data, &present); err != nil {
		return fmt.Errorf("%w: %w", ErrBadMessage, err)
	}
	if present.Line == nil {
		return fmt.Errorf("%w: select needs a line", ErrBadMessage)
	}
	return nil
}

// Selection returns the selection carried by a select message.
func (in Inbound) Selection() SelectionIn {
	return SelectionIn{Line: in.Line, Source: in.Source}
}

// OpenRequest returns the request carried by an openFile message.
func (in Inbound) OpenRequest() OpenFileRequest {
	req := OpenFileRequest{OpenFile: in.OpenFile}
	if in.Line > 0 {
		line := in.Line
		req.Line = &line
	}
	return req
}

// Outbound is a server message.
type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Result(r ResultOut) Outbound { return Outbound{Type: TypeResult, Payload: r} }
func External(e ExternalOut) Outbound { return Outbound{Type: TypeExternal, Payload: e} }
func OpenFile(r OpenFileRequest) Outbound { return Outbound{Type: TypeOpenFile, Payload: r} }
func Session(s SessionOut) Outbound { return Outbound{Type: TypeSession, Payload: s} }
func Error(err error) Outbound { return Outbound{Type: TypeError, Error: err.Error()} }

func nonNil(xs []int) []int {
	if xs == nil {
		return []int{}
	}
	return xs
}
