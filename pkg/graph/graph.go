package graph

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

// Graph represents a directed road graph in CSR (Compressed Sparse Row) format.
type Graph struct {
	NumNodes uint32
	NumEdges uint32
	FirstOut []uint32 // len: NumNodes + 1; FirstOut[i]..FirstOut[i+1] are edges from node i
	Head     []uint32 // len: NumEdges; target node for each edge
	Weight   []uint32 // len: NumEdges; distance in millimeters

	Points []orb.Point  // len: NumNodes
	OSMIDs []osm.NodeID // len: NumNodes; source OSM node per graph node
}

// EdgesFrom returns the range of edge indices for edges originating from node u.
func (g *Graph) EdgesFrom(u uint32) (start, end uint32) {
	return g.FirstOut[u], g.FirstOut[u+1]
}

// Bound returns the bounding box of all node points.
func (g *Graph) Bound() orb.Bound {
	if len(g.Points) == 0 {
		return orb.Bound{}
	}
	return orb.MultiPoint(g.Points).Bound()
}
