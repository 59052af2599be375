package session

import (
	"log/slog"
	"sync"
	"time"

	"proofdeps/internal/analysis"
	"proofdeps/internal/graph"
	"proofdeps/internal/ir"

	"github.com/google/uuid"
)

// DefaultSuppressWindow is how long a cursor echo of a pointer selection is ignored.
const DefaultSuppressWindow = 250 * time.Millisecond

// Trigger identifies where a query request came from.
type Trigger string

const (
	TriggerPointer Trigger = "pointer"
	TriggerCursor  Trigger = "cursor"
	TriggerMode    Trigger = "mode"
)

// Request is an in-flight query. Its engine is a copy of the session's modes
// at the time the request was opened.
type Request struct {
	Seq     uint64
	Trigger Trigger
	Line    int

	engine analysis.Engine
}

// Run evaluates the request. It does not touch the session.
func (r *Request) Run() analysis.Result {
	return r.engine.Query(r.Line)
}

// Update is a committed query result.
type Update struct {
	Seq     uint64
	Trigger Trigger
	Result  analysis.Result
}

// Session owns the graph of one analysis run and the UI state queried
// against it.
type Session struct {
	ID string

	mu        sync.Mutex
	engine    *analysis.Engine
	selected  int
	hasSel    bool
	seq       uint64
	committed uint64
	last      *Update

	// The most recent pointer-originated commit.
	pointerLine int
	pointerAt   time.Time

	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSuppressWindow(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.window = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithModes sets the initial direction, depth and filter.
func WithModes(dir analysis.Direction, depth analysis.Depth, filter analysis.Filter) Option {
	return func(s *Session) {
		s.engine.Direction = dir
		s.engine.Depth = depth
		s.engine.Filter = filter
	}
}

// New creates a session over g. A nil graph yields a session whose queries
// all come back empty.
func New(g *graph.Graph, opts ...Option) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		engine: analysis.NewEngine(g),
		window: DefaultSuppressWindow,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.ID)
	return s
}

func (s *Session) Graph() *graph.Graph {
	return s.engine.Graph()
}

// Begin opens a request for line. It returns false when the trigger is a
// cursor echo of the line just selected by pointer.
func (s *Session) Begin(trigger Trigger, line int) (*Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(trigger, line)
}

func (s *Session) beginLocked(trigger Trigger, line int) (*Request, bool) {
	if trigger == TriggerCursor && s.suppressedLocked(line) {
		s.logger.Debug("suppressed cursor echo", "line", line)
		return nil, false
	}
	s.seq++
	s.selected = line
	s.hasSel = true
	return &Request{Seq: s.seq, Trigger: trigger, Line: line, engine: *s.engine}, true
}

func (s *Session) suppressedLocked(line int) bool {
	if s.pointerAt.IsZero() || line != s.pointerLine {
		return false
	}
	return s.now().Sub(s.pointerAt) < s.window
}

// Complete commits the result of req unless a newer request has already
// been committed.
func (s *Session) Complete(req *Request, res analysis.Result) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeLocked(req, res)
}

func (s *Session) completeLocked(req *Request, res analysis.Result) (Update, bool) {
	if req == nil || req.Seq <= s.committed {
		if req != nil {
			s.logger.Debug("dropping stale result", "seq", req.Seq, "committed", s.committed)
		}
		return Update{}, false
	}
	s.committed = req.Seq
	u := Update{Seq: req.Seq, Trigger: req.Trigger, Result: res}
	s.last = &u
	if req.Trigger == TriggerPointer {
		s.pointerLine = req.Line
		s.pointerAt = s.now()
	}
	return u, true
}

// Select runs a query for line end to end.
func (s *Session) Select(trigger Trigger, line int) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.beginLocked(trigger, line)
	if !ok {
		return Update{}, false
	}
	return s.completeLocked(req, req.Run())
}

// Last returns the most recently committed update.
func (s *Session) Last() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Update{}, false
	}
	return *s.last, true
}

// Selection returns the currently selected line.
func (s *Session) Selection() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.hasSel
}

// Modes returns the current direction, depth and filter.
func (s *Session) Modes() (analysis.Direction, analysis.Depth, analysis.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Direction, s.engine.Depth, s.engine.Filter
}

// SetDirection changes the direction and re-queries the active selection.
func (s *Session) SetDirection(d analysis.Direction) (Update, bool) {
	return s.changeMode(func(e *analysis.Engine) { e.Direction = d })
}

// SetDepth changes the depth and re-queries the active selection.
func (s *Session) SetDepth(d analysis.Depth) (Update, bool) {
	return s.changeMode(func(e *analysis.Engine) { e.Depth = d })
}

// SetFilter replaces the category filter and re-queries the active selection.
func (s *Session) SetFilter(f analysis.Filter) (Update, bool) {
	return s.changeMode(func(e *analysis.Engine) { e.Filter = f })
}

// ToggleCategory flips one category and re-queries the active selection.
func (s *Session) ToggleCategory(c ir.Category) (Update, bool) {
	return s.changeMode(func(e *analysis.Engine) { e.Filter = e.Filter.Toggle(c) })
}

func (s *Session) changeMode(apply func(*analysis.Engine)) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	apply(s.engine)
	if !s.hasSel {
		return Update{}, false
	}
	req, _ := s.beginLocked(TriggerMode, s.selected)
	return s.completeLocked(req, req.Run())
}
