package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Trace struct {
		Dir      string `yaml:"dir"`
		Nodes    string `yaml:"nodes"`
		Edges    string `yaml:"edges"`
		Contents string `yaml:"contents"`
		// Derived is where the line-level edge file is written.
		Derived string `yaml:"derived"`
		Schema  string `yaml:"schema"` // auto, v1 or v2
	} `yaml:"trace"`
	Analysis struct {
		File   string `yaml:"file"`   // analyzed file as named in the trace
		Source string `yaml:"source"` // path to its text, for line contents
	} `yaml:"analysis"`
	Query struct {
		Direction          string        `yaml:"direction"`
		Depth              string        `yaml:"depth"`
		DisabledCategories []string      `yaml:"disabled_categories"`
		SuppressWindow     time.Duration `yaml:"suppress_window"`
	} `yaml:"query"`
	Storage struct {
		DBPath string `yaml:"db_path"`
		// Snapshot saves every built graph to DBPath.
		Snapshot bool `yaml:"snapshot"`
	} `yaml:"storage"`
	Server struct {
		Addr      string        `yaml:"addr"`
		Watch     bool          `yaml:"watch"`
		Debounce  time.Duration `yaml:"debounce"`
		StaticDir string        `yaml:"static_dir"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func DefaultConfig() *Config {
	var cfg Config
	cfg.Trace.Dir = "."
	cfg.Trace.Nodes = "nodes.txt"
	cfg.Trace.Edges = "edges.csv"
	cfg.Trace.Contents = "contents.csv"
	cfg.Trace.Derived = "line_edges.csv"
	cfg.Trace.Schema = "auto"
	cfg.Query.Direction = "causes"
	cfg.Query.Depth = "direct"
	cfg.Query.SuppressWindow = 250 * time.Millisecond
	cfg.Storage.DBPath = "proofdeps.db"
	cfg.Server.Addr = "127.0.0.1:7878"
	cfg.Server.Debounce = 300 * time.Millisecond
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return &cfg
}

// LoadConfig layers .env, the YAML file at path and PROOFDEPS_* variables
// over the defaults. A missing YAML file is not an error.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := DefaultConfig()

	// 2. Load YAML config
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	// 3. Override with Environment Variables if present
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"PROOFDEPS_TRACE_DIR":       &c.Trace.Dir,
		"PROOFDEPS_TRACE_SCHEMA":    &c.Trace.Schema,
		"PROOFDEPS_ANALYSIS_FILE":   &c.Analysis.File,
		"PROOFDEPS_ANALYSIS_SOURCE": &c.Analysis.Source,
		"PROOFDEPS_DIRECTION":       &c.Query.Direction,
		"PROOFDEPS_DEPTH":           &c.Query.Depth,
		"PROOFDEPS_DB_PATH":         &c.Storage.DBPath,
		"PROOFDEPS_ADDR":            &c.Server.Addr,
		"PROOFDEPS_LOG_LEVEL":       &c.Log.Level,
		"PROOFDEPS_LOG_FORMAT":      &c.Log.Format,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("PROOFDEPS_DISABLED_CATEGORIES"); v != "" {
		c.Query.DisabledCategories = nil
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				c.Query.DisabledCategories = append(c.Query.DisabledCategories, p)
			}
		}
	}
	if v := os.Getenv("PROOFDEPS_WATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PROOFDEPS_WATCH: %w", err)
		}
		c.Server.Watch = b
	}
	if v := os.Getenv("PROOFDEPS_SUPPRESS_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PROOFDEPS_SUPPRESS_WINDOW: %w", err)
		}
		c.Query.SuppressWindow = d
	}
	return nil
}

// TracePath resolves one of the trace file names against Trace.Dir.
func (c *Config) TracePath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Trace.Dir, name)
}
