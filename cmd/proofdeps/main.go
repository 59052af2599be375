package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"proofdeps/internal/analysis"
	"proofdeps/internal/config"
	"proofdeps/internal/export"
	"proofdeps/internal/graph"
	"proofdeps/internal/logging"
	"proofdeps/internal/pipeline"
	"proofdeps/internal/protocol"
	"proofdeps/internal/retrieval"
	"proofdeps/internal/server"
	"proofdeps/internal/session"
	"proofdeps/internal/storage"
	"proofdeps/internal/watcher"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "proofdeps",
		Short: "Line-level dependency graphs for verifier proof traces",
	}
	configPath string
	dbPath     string
	logFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "proofdeps.yaml", "Path to the YAML config file")
	// Empty means storage.db_path from the config.
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the graph snapshot database (SQLite)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	queryCmd.Flags().String("direction", "", "causes or effects (default from config)")
	queryCmd.Flags().String("depth", "", "direct or indirect (default from config)")
	queryCmd.Flags().StringSlice("disable", nil, "Categories to hide")
	queryCmd.Flags().Bool("fresh", false, "Rebuild from the trace instead of reading the snapshot")

	exportCmd.Flags().StringP("format", "f", "mermaid", "mermaid or json")
	exportCmd.Flags().Int("seed", 0, "Only export the neighbourhood of this line")
	exportCmd.Flags().Int("hops", retrieval.DefaultConfig().MaxHops, "Neighbourhood radius around --seed")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")

	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("watch", false, "Rebuild when the trace files change")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the config and applies the persistent flags.
func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	return cfg
}

func newLogger(cfg *config.Config) (*slog.Logger, func()) {
	level := logging.LevelFromString(cfg.Log.Level)
	if logFile == "" {
		return logging.NewLogger(os.Stderr, level, cfg.Log.Format), func() {}
	}
	logger, f, err := logging.NewFileLogger(logFile, level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	return logger, func() { f.Close() }
}

// initStore initializes the SQLite store.
func initStore(cfg *config.Config) *storage.SQLiteStore {
	store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	return store
}

// loadGraph prefers the snapshot and falls back to a fresh run.
func loadGraph(ctx context.Context, cfg *config.Config, logger *slog.Logger, fresh bool) *graph.Graph {
	if !fresh {
		if _, err := os.Stat(cfg.Storage.DBPath); err == nil {
			store := initStore(cfg)
			defer store.Close()
			g, err := store.LoadGraph(ctx)
			if err == nil {
				return g
			}
			if !errors.Is(err, storage.ErrNoSnapshot) {
				log.Fatalf("Failed to load graph snapshot: %v", err)
			}
		}
	}
	res, err := pipeline.Run(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	return res.Graph
}

var buildCmd = &cobra.Command{
	Use:   "build [trace-dir]",
	Short: "Build the line graph from a trace and save a snapshot",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if len(args) > 0 {
			cfg.Trace.Dir = args[0]
		}
		logger, closeLog := newLogger(cfg)
		defer closeLog()

		fmt.Printf("📂 Reading trace from: %s\n", cfg.Trace.Dir)

		store := initStore(cfg)
		defer store.Close()

		runner := &pipeline.Runner{Config: cfg, Store: store, Logger: logger}
		res, err := runner.Run(cmd.Context())
		if errors.Is(err, pipeline.ErrNoGraph) {
			log.Fatalf("No graph available: %v", err)
		}
		if err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}

		if res.GeneratedContents {
			fmt.Printf("📝 Generated line contents from %s\n", cfg.Analysis.Source)
		}
		fmt.Printf("   Nodes: %d accepted, %d rejected\n", res.Nodes.Accepted, res.Nodes.RejectedTotal())
		fmt.Printf("   Edges: %d accepted, %d rejected\n", res.Edges.Accepted, res.Edges.RejectedTotal())

		g := res.Graph
		fmt.Printf("✅ Built graph for %s: %d lines, %d edges, %d with external dependencies (%s)\n",
			g.File, len(g.Lines()), len(g.Edges()), len(g.External().Lines()), res.Duration.Round(time.Millisecond))
		if res.DerivedPath != "" {
			fmt.Printf("💾 Derived edges written to %s\n", res.DerivedPath)
		}
		fmt.Printf("💾 Snapshot saved to %s\n", cfg.Storage.DBPath)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <line>",
	Short: "Show what justifies a line (causes) or what it justifies (effects)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		line, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatalf("Line must be an integer, got %q", args[0])
		}

		cfg := loadConfig()
		if v, _ := cmd.Flags().GetString("direction"); v != "" {
			cfg.Query.Direction = v
		}
		if v, _ := cmd.Flags().GetString("depth"); v != "" {
			cfg.Query.Depth = v
		}
		if v, _ := cmd.Flags().GetStringSlice("disable"); len(v) > 0 {
			cfg.Query.DisabledCategories = v
		}
		fresh, _ := cmd.Flags().GetBool("fresh")
		logger, closeLog := newLogger(cfg)
		defer closeLog()

		g := loadGraph(cmd.Context(), cfg, logger, fresh)
		opts, err := session.OptionsFromConfig(cfg)
		if err != nil {
			log.Fatalf("Invalid query settings: %v", err)
		}
		sess := session.New(g, append(opts, session.WithLogger(logger))...)
		u, _ := sess.Select(session.TriggerPointer, line)
		res := u.Result
		_, depth, _ := sess.Modes()

		if res.OutOfRange {
			fmt.Printf("⚠️  Line %d is outside %s\n", line, g.File)
			return
		}
		fmt.Printf("🔍 %s of line %d (%s)\n", res.Direction, line, depth)
		printLines(g, "Direct", res.Direct)
		if depth == analysis.DirectPlusIndirect {
			printLines(g, "Indirect", res.Indirect)
		}

		ext := protocol.NewExternal(line, g.External().Disclose(line))
		if len(ext.Files) > 0 {
			fmt.Println("📎 Justified from other files:")
			for _, d := range ext.Files {
				fmt.Printf("   %s: %v\n", d.File, d.Lines)
			}
		}
	},
}

func printLines(g *graph.Graph, title string, lines []int) {
	fmt.Printf("   %s (%d):\n", title, len(lines))
	for _, l := range lines {
		text := ""
		if v, ok := g.Vertex(l); ok {
			text = v.Content
		}
		fmt.Printf("     %5d  %s\n", l, text)
	}
}

var showCmd = &cobra.Command{
	Use:   "show <line>",
	Short: "Print one line's categories and cross-file justifications from the snapshot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		line, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatalf("Line must be an integer, got %q", args[0])
		}

		cfg := loadConfig()
		var store storage.GraphStore = initStore(cfg)
		defer store.Close()

		v, err := store.Vertex(cmd.Context(), line)
		if err != nil {
			log.Fatalf("Failed to read snapshot: %v", err)
		}
		if v == nil {
			fmt.Printf("⚠️  Line %d is not in the stored graph (run `proofdeps build` first)\n", line)
			return
		}
		fmt.Printf("📄 Line %d: %s\n", v.Line, v.Content)
		fmt.Printf("   Categories: %v\n", v.Categories.Sorted())
		if n := v.ExternalCount(); n > 0 {
			fmt.Printf("📎 %d justifications from other files:\n", n)
			for _, d := range graphDeps(v.ExternalDeps) {
				fmt.Printf("   %s: %v\n", d.File, d.Lines)
			}
		}
	},
}

// graphDeps orders a vertex's external dependencies by file name.
func graphDeps(deps map[string][]int) []graph.FileLines {
	out := make([]graph.FileLines, 0, len(deps))
	for f, lines := range deps {
		out = append(out, graph.FileLines{File: f, Lines: lines})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the line graph as a Mermaid flowchart or visualization JSON",
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		seed, _ := cmd.Flags().GetInt("seed")
		hops, _ := cmd.Flags().GetInt("hops")
		output, _ := cmd.Flags().GetString("output")

		cfg := loadConfig()
		logger, closeLog := newLogger(cfg)
		defer closeLog()
		g := loadGraph(cmd.Context(), cfg, logger, false)

		out := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				log.Fatalf("Failed to create output file: %v", err)
			}
			defer f.Close()
			out = f
		}

		switch format {
		case "mermaid":
			var lines []int
			if seed > 0 {
				walk := retrieval.DefaultConfig()
				walk.MaxHops = hops
				lines = append([]int{}, retrieval.Extract(g, seed, walk).Lines...)
			}
			gen := export.MermaidGenerator{Fenced: strings.HasSuffix(output, ".md")}
			fmt.Fprint(out, gen.GenerateFlowChart(g, lines))
		case "json":
			v := export.BuildVisual(g)
			if seed > 0 {
				v = export.BuildNeighbourhood(g, seed, hops)
			}
			if err := export.WriteJSON(out, v); err != nil {
				log.Fatalf("Failed to write JSON: %v", err)
			}
		default:
			log.Fatalf("Unknown format %q (want mermaid or json)", format)
		}
		if output != "" {
			fmt.Printf("💾 Exported to %s\n", output)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query protocol over HTTP and WebSocket",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			cfg.Server.Addr = v
		}
		if v, _ := cmd.Flags().GetBool("watch"); v {
			cfg.Server.Watch = true
		}
		logger, closeLog := newLogger(cfg)
		defer closeLog()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var store storage.GraphStore
		if cfg.Storage.Snapshot {
			s := initStore(cfg)
			defer s.Close()
			store = s
		}
		runner := &pipeline.Runner{Config: cfg, Store: store, Logger: logger}
		reload := func(ctx context.Context) (*graph.Graph, error) {
			res, err := runner.Run(ctx)
			if err != nil {
				return nil, err
			}
			return res.Graph, nil
		}

		srv, err := server.New(cfg, server.WithLogger(logger), server.WithReloader(reload))
		if err != nil {
			log.Fatalf("Invalid server settings: %v", err)
		}
		if _, err := srv.Reload(ctx); err != nil {
			// The server still starts; clients are told no graph is available.
			fmt.Printf("⚠️  Initial analysis failed: %v\n", err)
		}

		if cfg.Server.Watch {
			files := []string{
				cfg.TracePath(cfg.Trace.Nodes),
				cfg.TracePath(cfg.Trace.Edges),
				cfg.TracePath(cfg.Trace.Contents),
			}
			w, err := watcher.New(files, func(paths []string) {
				fmt.Printf("🔄 Trace changed (%d files), rebuilding...\n", len(paths))
				if _, err := srv.Reload(ctx); err != nil {
					fmt.Printf("⚠️  Rebuild failed: %v\n", err)
				}
			}, cfg.Server.Debounce, logger)
			if err != nil {
				log.Fatalf("Failed to create watcher: %v", err)
			}
			if err := w.Start(ctx); err != nil {
				log.Fatalf("Failed to start watcher: %v", err)
			}
			defer w.Stop()
			fmt.Printf("👀 Watching %s\n", cfg.Trace.Dir)
		}

		fmt.Printf("🚀 Serving on http://%s\n", cfg.Server.Addr)
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	},
}
