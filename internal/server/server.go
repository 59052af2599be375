package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"proofdeps/internal/config"
	"proofdeps/internal/graph"
	"proofdeps/internal/logging"
	"proofdeps/internal/pipeline"
	"proofdeps/internal/session"

	"golang.org/x/sync/singleflight"
)

// Reloader rebuilds the graph from the trace files.
type Reloader func(ctx context.Context) (*graph.Graph, error)

// Server exposes the query protocol over HTTP and WebSocket. It owns one
// shared session for plain HTTP requests; every WebSocket connection gets
// its own.
type Server struct {
	cfg         *config.Config
	sessionOpts []session.Option
	reload      Reloader
	logger      *slog.Logger

	current atomic.Pointer[graph.Graph]
	group   singleflight.Group

	mu     sync.Mutex
	shared *session.Session
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = logging.OrDiscard(l) }
}

// WithGraph sets the graph served until the first reload.
func WithGraph(g *graph.Graph) Option {
	return func(s *Server) { s.current.Store(g) }
}

func WithReloader(r Reloader) Option {
	return func(s *Server) { s.reload = r }
}

func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{cfg: cfg, logger: logging.OrDiscard(nil)}
	for _, opt := range opts {
		opt(s)
	}

	sessionOpts, err := session.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	s.sessionOpts = append(sessionOpts, session.WithLogger(s.logger))
	s.shared = s.newSession()
	return s, nil
}

// Graph returns the graph new sessions are created over. It is nil until a
// build succeeds and after the trace files disappear.
func (s *Server) Graph() *graph.Graph {
	return s.current.Load()
}

func (s *Server) newSession() *session.Session {
	return session.New(s.Graph(), s.sessionOpts...)
}

// sharedSession returns the HTTP session, replacing it when the graph has
// been swapped since it was created.
func (s *Server) sharedSession() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shared.Graph() != s.Graph() {
		s.shared = s.newSession()
	}
	return s.shared
}

// Reload rebuilds the graph. Concurrent calls share one rebuild. When the
// trace files are gone the graph is discarded and clients see
// pipeline.ErrNoGraph; any other failure keeps the previous graph.
func (s *Server) Reload(ctx context.Context) (*graph.Graph, error) {
	if s.reload == nil {
		return s.Graph(), nil
	}
	v, err, shared := s.group.Do("reload", func() (any, error) {
		start := time.Now()
		g, err := s.reload(ctx)
		if errors.Is(err, pipeline.ErrNoGraph) {
			s.current.Store(nil)
			rebuildsTotal.WithLabelValues("no_graph").Inc()
			s.logger.Warn("trace files missing, graph discarded", "error", err)
			return nil, err
		}
		if err != nil {
			rebuildsTotal.WithLabelValues("error").Inc()
			s.logger.Error("rebuild failed", "error", err)
			return nil, err
		}
		s.current.Store(g)
		rebuildsTotal.WithLabelValues("ok").Inc()
		s.logger.Info("graph rebuilt", "vertices", len(g.Lines()), "duration", time.Since(start))
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("joined in-flight rebuild")
	}
	return v.(*graph.Graph), nil
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
