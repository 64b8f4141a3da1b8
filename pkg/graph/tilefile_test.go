package graph_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tile_router/pkg/graph"
	osmparser "tile_router/pkg/osm"
)

func buildTestTile(t *testing.T) *graph.Tile {
	t.Helper()
	g := graph.Build(&osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 10, ToNodeID: 20, Weight: 100},
			{FromNodeID: 20, ToNodeID: 10, Weight: 100},
			{FromNodeID: 20, ToNodeID: 30, Weight: 200},
			{FromNodeID: 30, ToNodeID: 20, Weight: 200},
			{FromNodeID: 10, ToNodeID: 40, Weight: 300},
		},
		Nodes: map[osm.NodeID]orb.Point{
			10: {103.0, 1.0}, 20: {103.1, 1.1}, 30: {103.2, 1.2}, 40: {103.3, 1.3},
		},
	})
	return &graph.Tile{Graph: g, CrossContext: []byte("cross-context-bytes")}
}

func TestTileRoundTrip(t *testing.T) {
	original := buildTestTile(t)
	path := filepath.Join(t.TempDir(), "12-1-2.tile")

	require.NoError(t, graph.WriteTile(path, original))

	loaded, err := graph.ReadTile(path)
	require.NoError(t, err)

	assert.Equal(t, original.Graph.NumNodes, loaded.Graph.NumNodes)
	assert.Equal(t, original.Graph.NumEdges, loaded.Graph.NumEdges)
	assert.Equal(t, original.Graph.FirstOut, loaded.Graph.FirstOut)
	assert.Equal(t, original.Graph.Head, loaded.Graph.Head)
	assert.Equal(t, original.Graph.Weight, loaded.Graph.Weight)
	assert.Equal(t, original.Graph.Points, loaded.Graph.Points)
	assert.Equal(t, original.Graph.OSMIDs, loaded.Graph.OSMIDs)
	assert.Equal(t, original.CrossContext, loaded.CrossContext)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file left behind")
}

func TestReadCrossContext(t *testing.T) {
	tile := buildTestTile(t)
	path := filepath.Join(t.TempDir(), "a.tile")
	require.NoError(t, graph.WriteTile(path, tile))

	blob, err := graph.ReadCrossContext(path)
	require.NoError(t, err)
	assert.Equal(t, tile.CrossContext, blob)

	t.Run("empty blob", func(t *testing.T) {
		tile.CrossContext = nil
		path := filepath.Join(t.TempDir(), "b.tile")
		require.NoError(t, graph.WriteTile(path, tile))
		blob, err := graph.ReadCrossContext(path)
		require.NoError(t, err)
		assert.Empty(t, blob)
	})
}

func TestReadTileDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.tile")
	require.NoError(t, graph.WriteTile(path, buildTestTile(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"flipped payload byte", func(b []byte) []byte { b[40] ^= 0xFF; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "bad.tile")
			require.NoError(t, os.WriteFile(p, tt.mutate(append([]byte(nil), data...)), 0o644))
			_, err := graph.ReadTile(p)
			assert.ErrorIs(t, err, graph.ErrCorruptTile)
		})
	}

	t.Run("truncated", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "short.tile")
		require.NoError(t, os.WriteFile(p, data[:len(data)-10], 0o644))
		_, err := graph.ReadTile(p)
		assert.Error(t, err)
		_, err = graph.ReadCrossContext(p)
		assert.Error(t, err)
	})
}

func TestWriteTileRejectsMismatchedGraph(t *testing.T) {
	tile := buildTestTile(t)
	tile.Graph.Points = tile.Graph.Points[:1]
	err := graph.WriteTile(filepath.Join(t.TempDir(), "x.tile"), tile)
	assert.Error(t, err)
}

func TestReadTileMissingFile(t *testing.T) {
	_, err := graph.ReadTile(filepath.Join(t.TempDir(), "missing.tile"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
