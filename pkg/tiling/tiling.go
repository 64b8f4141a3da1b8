// Package tiling partitions a road graph into web-mercator map tiles and
// finds the border nodes where edges cross from one tile into another.
package tiling

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"tile_router/pkg/graph"
)

// TileName returns the canonical "z-x-y" name of t.
func TileName(t maptile.Tile) string {
	return fmt.Sprintf("%d-%d-%d", t.Z, t.X, t.Y)
}

// ParseTileName is the inverse of TileName.
func ParseTileName(name string) (maptile.Tile, error) {
	var z, x, y uint32
	var rest string
	n, _ := fmt.Sscanf(name, "%d-%d-%d%s", &z, &x, &y, &rest)
	if n != 3 {
		return maptile.Tile{}, fmt.Errorf("invalid tile name %q", name)
	}
	t := maptile.New(x, y, maptile.Zoom(z))
	if !t.Valid() || TileName(t) != name {
		return maptile.Tile{}, fmt.Errorf("invalid tile name %q", name)
	}
	return t, nil
}

// TileOf returns the tile containing p at zoom z. Points on the antimeridian
// or south of the mercator limit fall into the last tile column or row.
func TileOf(p orb.Point, z maptile.Zoom) maptile.Tile {
	t := maptile.At(p, z)
	last := uint32(1)<<uint32(z) - 1
	t.X, t.Y = min(t.X, last), min(t.Y, last)
	return t
}

// Outgoing is a border node whose edge leaves its tile toward Neighbor.
type Outgoing struct {
	Node     uint32 // global graph node id
	Neighbor string
}

// Tile is one tile of a partition. All node ids are global graph ids.
type Tile struct {
	Tile     maptile.Tile
	Name     string
	Nodes    []uint32 // every graph node inside the tile, ascending
	Ingoing  []uint32 // targets of edges entering the tile, ascending
	Outgoing []Outgoing
}

// Partition is a graph split into tiles, sorted by tile name.
type Partition struct {
	Zoom  maptile.Zoom
	Tiles []*Tile
}

// Lookup returns the tile with the given name.
func (p *Partition) Lookup(name string) (*Tile, bool) {
	i, ok := slices.BinarySearchFunc(p.Tiles, name, func(t *Tile, name string) int {
		return cmp.Compare(t.Name, name)
	})
	if !ok {
		return nil, false
	}
	return p.Tiles[i], true
}

// Split assigns every node of g to its tile at zoom z. An edge u->v
// whose endpoints lie in different tiles makes u an outgoing node of
// tile(u) toward tile(v), and v an ingoing node of tile(v). Output order
// depends only on g.
func Split(g *graph.Graph, z maptile.Zoom) *Partition {
	nodeTile := make([]*Tile, g.NumNodes)
	byTile := make(map[maptile.Tile]*Tile)
	for u := range g.NumNodes {
		mt := TileOf(g.Points[u], z)
		t, ok := byTile[mt]
		if !ok {
			t = &Tile{Tile: mt, Name: TileName(mt)}
			byTile[mt] = t
		}
		t.Nodes = append(t.Nodes, u)
		nodeTile[u] = t
	}

	ingoing := make(map[uint32]struct{})
	outgoing := make(map[Outgoing]struct{})
	for u := range g.NumNodes {
		from := nodeTile[u]
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			v := g.Head[e]
			to := nodeTile[v]
			if to == from {
				continue
			}
			o := Outgoing{Node: u, Neighbor: to.Name}
			if _, seen := outgoing[o]; !seen {
				outgoing[o] = struct{}{}
				from.Outgoing = append(from.Outgoing, o)
			}
			if _, seen := ingoing[v]; !seen {
				ingoing[v] = struct{}{}
				to.Ingoing = append(to.Ingoing, v)
			}
		}
	}

	p := &Partition{Zoom: z, Tiles: make([]*Tile, 0, len(byTile))}
	for _, t := range byTile {
		slices.Sort(t.Ingoing)
		slices.SortFunc(t.Outgoing, func(a, b Outgoing) int {
			if c := cmp.Compare(a.Node, b.Node); c != 0 {
				return c
			}
			return cmp.Compare(a.Neighbor, b.Neighbor)
		})
		p.Tiles = append(p.Tiles, t)
	}
	slices.SortFunc(p.Tiles, func(a, b *Tile) int { return cmp.Compare(a.Name, b.Name) })
	return p
}
