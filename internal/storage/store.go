package storage

import (
	"context"
	"errors"

	"proofdeps/internal/graph"
)

// ErrNoSnapshot is returned when the database holds no saved graph.
var ErrNoSnapshot = errors.New("no graph snapshot stored")

// GraphStore persists the most recent line graph so it can be queried
// without re-ingesting the trace.
type GraphStore interface {
	// SaveGraph replaces the stored snapshot with g.
	SaveGraph(ctx context.Context, g *graph.Graph) error

	// LoadGraph restores the stored snapshot.
	LoadGraph(ctx context.Context) (*graph.Graph, error)

	// Vertex reads one vertex without restoring the whole graph.
	Vertex(ctx context.Context, line int) (*graph.Vertex, error)

	Close() error
}
