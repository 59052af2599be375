package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"proofdeps/internal/graph"
	"proofdeps/internal/ir"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ GraphStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS vertices (
			line INTEGER PRIMARY KEY,
			categories JSON,
			content TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS edges (
			source INTEGER,
			target INTEGER,
			PRIMARY KEY (source, target)
		);`,
		`CREATE TABLE IF NOT EXISTS raw_edges (
			source INTEGER,
			target INTEGER,
			label TEXT,
			PRIMARY KEY (source, target)
		);`,
		`CREATE TABLE IF NOT EXISTS external (
			target INTEGER,
			file TEXT,
			line INTEGER,
			PRIMARY KEY (target, file, line)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveGraph replaces the stored snapshot with g in one transaction.
func (s *SQLiteStore) SaveGraph(ctx context.Context, g *graph.Graph) error {
	snap := g.Snapshot()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"meta", "vertices", "edges", "raw_edges", "external"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	meta := map[string]string{
		"file":       snap.File,
		"line_count": strconv.Itoa(snap.LineCount),
		"saved_at":   time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return err
		}
	}

	// 1. Save Vertices
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO vertices (line, categories, content) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range snap.Vertices {
		cats, err := json.Marshal(v.Categories)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, v.Line, cats, v.Content); err != nil {
			return err
		}
	}

	// 2. Save Edges
	edgeStmt, err := tx.PrepareContext(ctx, "INSERT INTO edges (source, target) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer edgeStmt.Close()

	for _, e := range snap.Edges {
		if _, err := edgeStmt.ExecContext(ctx, e.Source, e.Target); err != nil {
			return err
		}
	}

	rawStmt, err := tx.PrepareContext(ctx, "INSERT INTO raw_edges (source, target, label) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer rawStmt.Close()

	for _, e := range snap.RawEdges {
		if _, err := rawStmt.ExecContext(ctx, e.Source, e.Target, e.Label); err != nil {
			return err
		}
	}

	// 3. Save cross-file relations
	extStmt, err := tx.PrepareContext(ctx, "INSERT INTO external (target, file, line) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer extStmt.Close()

	for target, files := range snap.External {
		for file, lines := range files {
			for _, l := range lines {
				if _, err := extStmt.ExecContext(ctx, target, file, l); err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit()
}

// LoadGraph restores the stored snapshot.
func (s *SQLiteStore) LoadGraph(ctx context.Context) (*graph.Graph, error) {
	var snap graph.Snapshot

	meta, err := s.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	snap.File = meta["file"]
	snap.LineCount, _ = strconv.Atoi(meta["line_count"])

	// 1. Load External (vertices carry their own copy)
	external, err := s.loadExternal(ctx)
	if err != nil {
		return nil, err
	}
	snap.External = external

	// 2. Load Vertices
	rows, err := s.db.QueryContext(ctx, "SELECT line, categories, content FROM vertices ORDER BY line")
	if err != nil {
		return nil, fmt.Errorf("failed to query vertices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVertex(rows)
		if err != nil {
			return nil, err
		}
		v.ExternalDeps = copyDeps(external[v.Line])
		snap.Vertices = append(snap.Vertices, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 3. Load Edges
	edgeRows, err := s.db.QueryContext(ctx, "SELECT source, target FROM edges")
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var e graph.Edge
		if err := edgeRows.Scan(&e.Source, &e.Target); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		snap.Edges = append(snap.Edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, err
	}

	rawRows, err := s.db.QueryContext(ctx, "SELECT source, target, label FROM raw_edges")
	if err != nil {
		return nil, fmt.Errorf("failed to query raw edges: %w", err)
	}
	defer rawRows.Close()

	for rawRows.Next() {
		var e graph.LabeledEdge
		if err := rawRows.Scan(&e.Source, &e.Target, &e.Label); err != nil {
			return nil, fmt.Errorf("failed to scan raw edge: %w", err)
		}
		snap.RawEdges = append(snap.RawEdges, e)
	}
	if err := rawRows.Err(); err != nil {
		return nil, err
	}

	return graph.Restore(snap), nil
}

// Vertex reads one vertex. A line that is not a vertex yields (nil, nil).
func (s *SQLiteStore) Vertex(ctx context.Context, line int) (*graph.Vertex, error) {
	row := s.db.QueryRowContext(ctx, "SELECT line, categories, content FROM vertices WHERE line = ?", line)
	v, err := scanVertex(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	extRows, err := s.db.QueryContext(ctx, "SELECT file, line FROM external WHERE target = ? ORDER BY file, line", line)
	if err != nil {
		return nil, err
	}
	defer extRows.Close()
	for extRows.Next() {
		var file string
		var l int
		if err := extRows.Scan(&file, &l); err != nil {
			return nil, err
		}
		if v.ExternalDeps == nil {
			v.ExternalDeps = make(map[string][]int)
		}
		v.ExternalDeps[file] = append(v.ExternalDeps[file], l)
	}
	return v, extRows.Err()
}

func (s *SQLiteStore) loadMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("failed to query meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, ok := meta["file"]; !ok {
		return nil, ErrNoSnapshot
	}
	return meta, nil
}

func (s *SQLiteStore) loadExternal(ctx context.Context) (map[int]map[string][]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT target, file, line FROM external ORDER BY target, file, line")
	if err != nil {
		return nil, fmt.Errorf("failed to query external: %w", err)
	}
	defer rows.Close()

	out := make(map[int]map[string][]int)
	for rows.Next() {
		var target, line int
		var file string
		if err := rows.Scan(&target, &file, &line); err != nil {
			return nil, err
		}
		if out[target] == nil {
			out[target] = make(map[string][]int)
		}
		out[target][file] = append(out[target][file], line)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVertex(sc scanner) (*graph.Vertex, error) {
	var v graph.Vertex
	var cats []byte
	if err := sc.Scan(&v.Line, &cats, &v.Content); err != nil {
		return nil, err
	}
	v.Categories = ir.NewCategorySet()
	if len(cats) > 0 {
		if err := json.Unmarshal(cats, &v.Categories); err != nil {
			return nil, fmt.Errorf("vertex %d categories: %w", v.Line, err)
		}
	}
	return &v, nil
}

func copyDeps(files map[string][]int) map[string][]int {
	if len(files) == 0 {
		return nil
	}
	out := make(map[string][]int, len(files))
	for f, lines := range files {
		out[f] = append([]int(nil), lines...)
	}
	return out
}
