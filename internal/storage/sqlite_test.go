package storage

import (
	"context"
	"path/filepath"
	"testing"

	"proofdeps/internal/graph"
	"proofdeps/internal/ir"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode(id string, cat ir.Category, file string, line int) ir.TraceNode {
	return ir.TraceNode{ID: id, Category: cat, Position: ir.Position{File: file, Line: line}, HasPosition: true}
}

func testGraph() *graph.Graph {
	return graph.Build(graph.Input{
		File: "main.rs",
		Nodes: []ir.TraceNode{
			testNode("a", ir.ExplicitAssumption, "main.rs", 1),
			testNode("b", ir.ExplicitAssertion, "main.rs", 2),
			testNode("c", ir.ImplicitAssertion, "main.rs", 3),
			testNode("l", ir.ExplicitAssumption, "lib.rs", 40),
		},
		Edges: []ir.TraceEdge{
			{Source: "a", Target: "b", Label: "used"},
			{Source: "b", Target: "c", Label: "used"},
			{Source: "l", Target: "c", Label: "used"},
		},
		Contents: []ir.LineContent{{Line: 1, Text: `requires x > 0`}, {Line: 2, Text: `assert "y"`}, {Line: 3, Text: "z"}},
	})
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	g := testGraph()
	require.NoError(t, store.SaveGraph(ctx, g))

	loaded, err := store.LoadGraph(ctx)
	require.NoError(t, err)

	assert.Equal(t, g.File, loaded.File)
	assert.Equal(t, g.LineCount, loaded.LineCount)
	assert.Equal(t, g.Lines(), loaded.Lines())
	assert.Equal(t, g.Edges(), loaded.Edges())
	assert.Equal(t, g.RawEdges(), loaded.RawEdges())
	assert.Equal(t, g.Vertices(), loaded.Vertices())
	assert.Equal(t, []graph.FileLines{{File: "lib.rs", Lines: []int{40}}}, loaded.External().Disclose(3))
}

func TestSQLiteStore_SaveGraph_SnapshotSync(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveGraph(ctx, testGraph()))

	// Second snapshot replaces the first entirely.
	g2 := graph.Build(graph.Input{
		File: "other.rs",
		Nodes: []ir.TraceNode{
			testNode("x", ir.Infeasible, "other.rs", 7),
			testNode("y", ir.ImplicitAssertion, "other.rs", 9),
		},
		Edges: []ir.TraceEdge{{Source: "x", Target: "y"}},
	})
	require.NoError(t, store.SaveGraph(ctx, g2))

	loaded, err := store.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, "other.rs", loaded.File)
	assert.Equal(t, []int{7, 9}, loaded.Lines())
	assert.Equal(t, []graph.Edge{{Source: 7, Target: 9}}, loaded.Edges())
	assert.Empty(t, loaded.External().Lines())
}

func TestSQLiteStore_EmptyDatabase(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.LoadGraph(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSQLiteStore_Vertex(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveGraph(ctx, testGraph()))

	v, err := store.Vertex(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, v.Has(ir.ImplicitAssertion))
	assert.Equal(t, map[string][]int{"lib.rs": {40}}, v.ExternalDeps)

	v, err = store.Vertex(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, `assert "y"`, v.Content)

	v, err = store.Vertex(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, v)
}
