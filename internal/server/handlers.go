package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"proofdeps/internal/analysis"
	"proofdeps/internal/export"
	"proofdeps/internal/graph"
	"proofdeps/internal/ir"
	"proofdeps/internal/pipeline"
	"proofdeps/internal/protocol"
	"proofdeps/internal/retrieval"
	"proofdeps/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the HTTP handler (router with recovery, routes).
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleSession)
		r.Post("/select", s.handleSelect)
		r.Post("/mode", s.handleMode)
		r.Get("/external/{line}", s.handleExternal)
		r.Get("/graph", s.handleGraph)
		r.Get("/graph.mmd", s.handleMermaid)
		r.Post("/reload", s.handleReload)
	})

	if dir := strings.TrimSuffix(s.cfg.Server.StaticDir, "/"); dir != "" {
		r.Get("/*", serveStatic(dir))
	}
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "graph": s.Graph() != nil})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.NewSession(s.sharedSession()))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	in, err := protocol.DecodeSelection(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, ok := dispatch(s.sharedSession(), protocol.Inbound{Type: protocol.TypeSelect, Line: in.Line, Source: in.Source})
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, out.Payload)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var in protocol.ModeIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", protocol.ErrBadMessage, err))
		return
	}
	for i, c := range in.Categories {
		parsed, err := ir.ParseCategory(string(c))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", protocol.ErrBadMessage, err))
			return
		}
		in.Categories[i] = parsed
	}
	out, _ := dispatch(s.sharedSession(), protocol.Inbound{Type: protocol.TypeMode, ModeIn: in})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExternal(w http.ResponseWriter, r *http.Request) {
	line, err := strconv.Atoi(chi.URLParam(r, "line"))
	if err != nil || line <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: line must be a positive integer", protocol.ErrBadMessage))
		return
	}
	writeJSON(w, http.StatusOK, external(s.Graph(), line))
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	g := s.Graph()
	if g == nil {
		writeError(w, http.StatusServiceUnavailable, pipeline.ErrNoGraph)
		return
	}
	seed, hops, ok := neighbourhoodParams(w, r)
	if !ok {
		return
	}
	if seed > 0 {
		writeJSON(w, http.StatusOK, export.BuildNeighbourhood(g, seed, hops))
		return
	}
	writeJSON(w, http.StatusOK, export.BuildVisual(g))
}

func (s *Server) handleMermaid(w http.ResponseWriter, r *http.Request) {
	g := s.Graph()
	if g == nil {
		writeError(w, http.StatusServiceUnavailable, pipeline.ErrNoGraph)
		return
	}
	seed, hops, ok := neighbourhoodParams(w, r)
	if !ok {
		return
	}
	var lines []int
	if seed > 0 {
		cfg := retrieval.DefaultConfig()
		cfg.MaxHops = hops
		lines = append([]int{}, retrieval.Extract(g, seed, cfg).Lines...)
	}
	gen := export.MermaidGenerator{}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(gen.GenerateFlowChart(g, lines)))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Reload(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewSession(s.sharedSession()))
}

// neighbourhoodParams reads the optional seed and hops query parameters.
func neighbourhoodParams(w http.ResponseWriter, r *http.Request) (seed, hops int, ok bool) {
	hops = retrieval.DefaultConfig().MaxHops
	q := r.URL.Query()
	if v := q.Get("seed"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: bad seed %q", protocol.ErrBadMessage, v))
			return 0, 0, false
		}
		seed = n
	}
	if v := q.Get("hops"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: bad hops %q", protocol.ErrBadMessage, v))
			return 0, 0, false
		}
		hops = n
	}
	return seed, hops, true
}

// dispatch applies one validated client message to sess. The bool is false
// when nothing needs to be sent back (a suppressed cursor echo).
func dispatch(sess *session.Session, in protocol.Inbound) (protocol.Outbound, bool) {
	switch in.Type {
	case protocol.TypeSelect:
		sel := in.Selection()
		start := time.Now()
		u, ok := sess.Select(sel.Trigger(), sel.Line)
		if !ok {
			suppressedTotal.Inc()
			return protocol.Outbound{}, false
		}
		queryLatency.Observe(time.Since(start).Seconds())
		queriesTotal.WithLabelValues(string(u.Trigger)).Inc()
		return protocol.Result(protocol.FromUpdate(u)), true

	case protocol.TypeMode:
		u, ok := applyMode(sess, in.ModeIn)
		return modeReply(sess, u, ok)

	case protocol.TypeToggleCategory:
		u, ok := sess.ToggleCategory(in.Category)
		return modeReply(sess, u, ok)

	case protocol.TypeExternal:
		return protocol.External(external(sess.Graph(), in.Line)), true

	case protocol.TypeOpenFile:
		// Navigation belongs to the host; the request is echoed for it.
		return protocol.OpenFile(in.OpenRequest()), true
	}
	return protocol.Error(fmt.Errorf("%w: unknown type %q", protocol.ErrBadMessage, in.Type)), true
}

// applyMode applies every field present in m and returns the last update.
func applyMode(sess *session.Session, m protocol.ModeIn) (session.Update, bool) {
	var (
		u  session.Update
		ok bool
	)
	if m.Direction != nil {
		u, ok = sess.SetDirection(*m.Direction)
	}
	if m.Depth != nil {
		u, ok = sess.SetDepth(*m.Depth)
	}
	if m.Categories != nil {
		u, ok = sess.SetFilter(filterOf(m.Categories))
	}
	return u, ok
}

func modeReply(sess *session.Session, u session.Update, ok bool) (protocol.Outbound, bool) {
	if ok {
		queriesTotal.WithLabelValues(string(u.Trigger)).Inc()
		return protocol.Result(protocol.FromUpdate(u)), true
	}
	return protocol.Session(protocol.NewSession(sess)), true
}

// filterOf builds a filter enabling exactly the given categories.
func filterOf(enabled []ir.Category) analysis.Filter {
	on := ir.NewCategorySet(enabled...)
	var disabled []ir.Category
	for _, c := range ir.AllCategories {
		if !on.Has(c) {
			disabled = append(disabled, c)
		}
	}
	return analysis.NewFilter(disabled...)
}

func external(g *graph.Graph, line int) protocol.ExternalOut {
	if g == nil {
		return protocol.NewExternal(line, nil)
	}
	return protocol.NewExternal(line, g.External().Disclose(line))
}

func serveStatic(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}
		fpath := filepath.Join(dir, filepath.Clean("/"+path))
		if info, err := os.Stat(fpath); err == nil && !info.IsDir() {
			http.ServeFile(w, r, fpath)
			return
		}
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, protocol.Error(err))
}
