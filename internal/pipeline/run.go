package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"proofdeps/internal/config"
	"proofdeps/internal/graph"
	"proofdeps/internal/ir"
	"proofdeps/internal/logging"
	"proofdeps/internal/storage"
	"proofdeps/internal/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrNoGraph means the node or edge file was missing, so no graph exists
// for this run.
var ErrNoGraph = errors.New("no graph available")

// Runner performs one analysis run: ingest, build, write derived files.
type Runner struct {
	Config *config.Config
	// Store, when set, receives a snapshot of every built graph.
	Store  storage.GraphStore
	Logger *slog.Logger
}

// Result is what one run produced.
type Result struct {
	Graph    *graph.Graph
	Nodes    trace.Report
	Edges    trace.Report
	Contents trace.Report
	// GeneratedContents is set when the line-content file was written from
	// the analyzed source during this run.
	GeneratedContents bool
	DerivedPath       string
	Duration          time.Duration
}

type loaded struct {
	nodes     []ir.TraceNode
	edges     []ir.TraceEdge
	contents  []ir.LineContent
	nodeRep   trace.Report
	edgeRep   trace.Report
	contRep   trace.Report
	generated bool
}

// Run is shorthand for a Runner without a store.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Result, error) {
	r := &Runner{Config: cfg, Logger: logger}
	return r.Run(ctx)
}

func (r *Runner) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	logger := logging.OrDiscard(r.Logger)
	cfg := r.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ctx, span := startRunSpan(ctx, cfg)
	defer func() {
		endSpan(span, err)
		recordRunMetrics(ctx, time.Since(start), res, err)
	}()

	in, err := r.loadStage(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, ErrNoGraph) {
			logger.Warn("skipping graph construction", "error", err)
		}
		return nil, err
	}

	g := r.buildStage(ctx, cfg, in, logger)

	derived, err := r.writeDerivedStage(ctx, cfg, g)
	if err != nil {
		return nil, err
	}

	if r.Store != nil {
		if err := r.snapshotStage(ctx, g); err != nil {
			return nil, err
		}
	}

	res = &Result{
		Graph:             g,
		Nodes:             in.nodeRep,
		Edges:             in.edgeRep,
		Contents:          in.contRep,
		GeneratedContents: in.generated,
		DerivedPath:       derived,
		Duration:          time.Since(start),
	}
	span.SetAttributes(
		attribute.Int("graph.vertex_count", len(g.Lines())),
		attribute.Int("graph.edge_count", len(g.Edges())),
	)
	logger.Info("analysis run complete",
		"file", g.File,
		"vertices", len(g.Lines()),
		"edges", len(g.Edges()),
		"duration", res.Duration,
	)
	return res, nil
}

// loadStage reads the three trace files concurrently.
func (r *Runner) loadStage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*loaded, error) {
	ctx, span := tracer.Start(ctx, "pipeline.load")
	defer span.End()

	nodesPath := cfg.TracePath(cfg.Trace.Nodes)
	edgesPath := cfg.TracePath(cfg.Trace.Edges)
	for _, p := range []string{nodesPath, edgesPath} {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrNoGraph, p)
		}
	}

	nr, err := trace.NewNodeReader(cfg.Trace.Schema, logger)
	if err != nil {
		return nil, err
	}

	var in loaded
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		f, err := os.Open(nodesPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in.nodes, in.nodeRep, err = nr.Read(f)
		return err
	})

	eg.Go(func() error {
		f, err := os.Open(edgesPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in.edges, in.edgeRep, err = trace.ReadEdges(f, logger)
		return err
	})

	eg.Go(func() error {
		var err error
		in.contents, in.contRep, in.generated, err = loadContents(ctx, cfg, logger)
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("trace.nodes", len(in.nodes)),
		attribute.Int("trace.edges", len(in.edges)),
		attribute.Int("trace.contents", len(in.contents)),
	)
	logReport(logger, "nodes", in.nodeRep)
	logReport(logger, "edges", in.edgeRep)
	return &in, nil
}

// loadContents reads the line-content file, generating it from the analyzed
// source when it does not exist yet. A run without any line text still
// produces a graph.
func loadContents(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]ir.LineContent, trace.Report, bool, error) {
	path := cfg.TracePath(cfg.Trace.Contents)
	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		contents, rep, err := trace.ReadLineContents(f, logger)
		return contents, rep, false, err
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, trace.Report{}, false, err
	}

	source := cfg.Analysis.Source
	if source == "" {
		source = cfg.Analysis.File
	}
	if source == "" {
		logger.Warn("no line contents and no analyzed source configured", "contents", path)
		return nil, trace.Report{}, false, nil
	}

	src, err := os.Open(source)
	if err != nil {
		logger.Warn("line contents unavailable", "contents", path, "source", source, "error", err)
		return nil, trace.Report{}, false, nil
	}
	defer src.Close()

	contents, err := trace.ContentsFromSource(src)
	if err != nil {
		return nil, trace.Report{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, trace.Report{}, false, err
	}
	if err := writeFile(path, func(f *os.File) error { return trace.WriteLineContents(f, contents) }); err != nil {
		return nil, trace.Report{}, false, fmt.Errorf("write line contents: %w", err)
	}
	logger.Info("generated line contents", "source", source, "path", path, "lines", len(contents))
	return contents, trace.Report{Accepted: len(contents)}, true, nil
}

func (r *Runner) buildStage(ctx context.Context, cfg *config.Config, in *loaded, logger *slog.Logger) *graph.Graph {
	_, span := tracer.Start(ctx, "pipeline.build")
	defer span.End()

	file := cfg.Analysis.File
	if file == "" {
		file = dominantFile(in.nodes)
		logger.Info("analyzed file not configured, using the most referenced one", "file", file)
	}

	g := graph.Build(graph.Input{
		File:     file,
		Nodes:    in.nodes,
		Edges:    in.edges,
		Contents: in.contents,
	})

	stats := g.Stats()
	span.SetAttributes(
		attribute.String("graph.file", file),
		attribute.Int("graph.raw_edges", stats.RawEdges),
		attribute.Int("graph.external_relations", stats.ExternalRelations),
	)
	for reason, n := range g.DroppedReasonCounts() {
		logger.Debug("dropped trace edges", "reason", reason, "count", n)
	}
	return g
}

func (r *Runner) writeDerivedStage(ctx context.Context, cfg *config.Config, g *graph.Graph) (string, error) {
	_, span := tracer.Start(ctx, "pipeline.write_derived")
	defer span.End()

	path := cfg.TracePath(cfg.Trace.Derived)
	if path == "" {
		return "", nil
	}
	err := writeFile(path, func(f *os.File) error { return WriteLineEdges(f, g.RawEdges()) })
	if err != nil {
		return "", fmt.Errorf("write derived edges: %w", err)
	}
	return path, nil
}

func (r *Runner) snapshotStage(ctx context.Context, g *graph.Graph) error {
	ctx, span := tracer.Start(ctx, "pipeline.snapshot")
	defer span.End()

	if err := r.Store.SaveGraph(ctx, g); err != nil {
		return fmt.Errorf("failed to save graph snapshot: %w", err)
	}
	return nil
}

// dominantFile returns the file named by the most positioned nodes.
func dominantFile(nodes []ir.TraceNode) string {
	counts := make(map[string]int)
	for _, n := range nodes {
		if n.HasPosition {
			counts[n.Position.File]++
		}
	}
	files := make([]string, 0, len(counts))
	for f := range counts {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if counts[files[i]] == counts[files[j]] {
			return files[i] < files[j]
		}
		return counts[files[i]] > counts[files[j]]
	})
	if len(files) == 0 {
		return ""
	}
	return files[0]
}

func writeFile(path string, write func(*os.File) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func logReport(logger *slog.Logger, what string, rep trace.Report) {
	if rep.RejectedTotal() == 0 {
		return
	}
	args := []any{"file", what, "accepted", rep.Accepted}
	for reason, n := range rep.Rejected {
		args = append(args, string(reason), n)
	}
	logger.Warn("rejected trace records", args...)
}

func endSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
