// Package tilebuild turns a road graph into per-tile files, each carrying
// the tile's subgraph and its cross-tile routing context.
package tilebuild

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tile_router/pkg/crossctx"
	"tile_router/pkg/graph"
	"tile_router/pkg/routing"
	"tile_router/pkg/tiling"
)

// Builder writes one tile file per non-empty tile of a graph.
type Builder struct {
	Zoom      maptile.Zoom
	Workers   int // defaults to runtime.NumCPU()
	OutputDir string
	Logger    *zap.Logger
	Metrics   *Metrics
	Verify    bool // read every tile back after writing it
}

// Summary totals a build.
type Summary struct {
	Tiles          int
	IngoingNodes   int
	OutgoingNodes  int
	ReachablePairs int
}

func (s *Summary) add(o Summary) {
	s.Tiles += o.Tiles
	s.IngoingNodes += o.IngoingNodes
	s.OutgoingNodes += o.OutgoingNodes
	s.ReachablePairs += o.ReachablePairs
}

func (b *Builder) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// Build partitions g and writes every tile to OutputDir. Tiles are built
// concurrently, each with its own crossctx.Writer. The first failure
// cancels the remaining tiles.
func (b *Builder) Build(ctx context.Context, g *graph.Graph) (*Summary, error) {
	log := b.logger()
	if err := os.MkdirAll(b.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	start := time.Now()
	p := tiling.Split(g, b.Zoom)
	log.Info("graph partitioned",
		zap.Uint32("zoom", uint32(b.Zoom)),
		zap.Int("tiles", len(p.Tiles)),
		zap.Duration("elapsed", time.Since(start)))

	workers := b.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, t := range p.Tiles {
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tile, stats, err := BuildTile(g, t)
			if err != nil {
				return fmt.Errorf("tile %s: %w", t.Name, err)
			}
			path := graph.TilePath(b.OutputDir, t.Name)
			if err := graph.WriteTile(path, tile); err != nil {
				return fmt.Errorf("tile %s: %w", t.Name, err)
			}
			if b.Verify {
				if err := verifyTile(path, tile); err != nil {
					return fmt.Errorf("tile %s: %w", t.Name, err)
				}
			}
			b.Metrics.recordTile(stats)
			log.Debug("tile written",
				zap.String("tile", t.Name),
				zap.Uint32("nodes", tile.Graph.NumNodes),
				zap.Int("ingoing", stats.IngoingNodes),
				zap.Int("outgoing", stats.OutgoingNodes),
				zap.Int("reachable_pairs", stats.ReachablePairs))

			mu.Lock()
			summary.add(stats)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Info("tiles built",
		zap.Int("tiles", summary.Tiles),
		zap.Int("ingoing", summary.IngoingNodes),
		zap.Int("outgoing", summary.OutgoingNodes),
		zap.Int("reachable_pairs", summary.ReachablePairs),
		zap.Duration("elapsed", time.Since(start)))
	return &summary, nil
}

// verifyTile reads the file at path back and compares it with what was
// written.
func verifyTile(path string, want *graph.Tile) error {
	got, err := graph.ReadTile(path)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if got.Graph.NumNodes != want.Graph.NumNodes || got.Graph.NumEdges != want.Graph.NumEdges {
		return fmt.Errorf("verify: read back %d nodes, %d edges, wrote %d nodes, %d edges",
			got.Graph.NumNodes, got.Graph.NumEdges, want.Graph.NumNodes, want.Graph.NumEdges)
	}
	if !bytes.Equal(got.CrossContext, want.CrossContext) {
		return fmt.Errorf("verify: routing context differs from the one written")
	}
	return crossctx.NewReader().LoadBytes(got.CrossContext)
}

// BuildTile builds the subgraph and routing context of one partition tile.
// Border node ids in the context are the tile-local ids of the subgraph.
func BuildTile(g *graph.Graph, t *tiling.Tile) (*graph.Tile, Summary, error) {
	sub := graph.Subgraph(g, t.Nodes)
	local := func(global uint32) uint32 {
		i, ok := slices.BinarySearch(t.Nodes, global)
		if !ok {
			panic(fmt.Sprintf("tilebuild: node %d is not in tile %s", global, t.Name))
		}
		return uint32(i)
	}

	w := crossctx.NewWriter()
	for _, v := range t.Ingoing {
		l := local(v)
		w.AddIngoingNode(crossctx.NodeID(l), sub.Points[l])
	}
	targets := make([]uint32, len(t.Outgoing))
	for i, o := range t.Outgoing {
		targets[i] = local(o.Node)
		w.AddOutgoingNode(crossctx.NodeID(targets[i]), o.Neighbor, sub.Points[targets[i]])
	}
	w.ReserveAdjacencyMatrix()

	stats := Summary{Tiles: 1, IngoingNodes: len(t.Ingoing), OutgoingNodes: len(t.Outgoing)}
	if len(targets) > 0 {
		qs := routing.NewSearchState(sub.NumNodes)
		outgoing := w.OutgoingNodes()
		for _, in := range w.IngoingNodes() {
			dist := routing.OneToMany(sub, uint32(in.ID), targets, qs)
			for i, d := range dist {
				if d == math.MaxUint32 {
					continue
				}
				w.SetAdjacencyCost(in, outgoing[i], crossctx.EdgeWeight(d))
				stats.ReachablePairs++
			}
		}
	}

	var buf bytes.Buffer
	if err := w.Save(&buf); err != nil {
		return nil, Summary{}, err
	}
	return &graph.Tile{Graph: sub, CrossContext: buf.Bytes()}, stats, nil
}
