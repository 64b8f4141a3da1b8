package graph

import (
	"cmp"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	osmparser "tile_router/pkg/osm"
)

// Build creates a CSR Graph from parsed OSM edges. Graph node ids are
// assigned in order of first appearance in result.Edges.
func Build(result *osmparser.ParseResult) *Graph {
	edges := result.Edges
	if len(edges) == 0 {
		return newGraph(0, nil)
	}

	nodeSet := make(map[osm.NodeID]uint32)
	var osmIDs []osm.NodeID
	addNode := func(id osm.NodeID) uint32 {
		if idx, ok := nodeSet[id]; ok {
			return idx
		}
		idx := uint32(len(osmIDs))
		nodeSet[id] = idx
		osmIDs = append(osmIDs, id)
		return idx
	}

	compact := make([]edge, len(edges))
	for i, e := range edges {
		compact[i] = edge{
			from:   addNode(e.FromNodeID),
			to:     addNode(e.ToNodeID),
			weight: e.Weight,
		}
	}

	g := newGraph(uint32(len(osmIDs)), compact)
	g.OSMIDs = osmIDs
	for i, id := range osmIDs {
		g.Points[i] = result.Nodes[id]
	}
	return g
}

type edge struct {
	from, to, weight uint32
}

// newGraph lays edges out in CSR order, sorted by source then target.
// Points and OSMIDs are allocated but left for the caller to fill.
func newGraph(numNodes uint32, edges []edge) *Graph {
	slices.SortFunc(edges, func(a, b edge) int {
		if c := cmp.Compare(a.from, b.from); c != 0 {
			return c
		}
		return cmp.Compare(a.to, b.to)
	})

	numEdges := uint32(len(edges))
	firstOut := make([]uint32, numNodes+1)
	head := make([]uint32, numEdges)
	weight := make([]uint32, numEdges)
	for i, e := range edges {
		head[i] = e.to
		weight[i] = e.weight
		firstOut[e.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	return &Graph{
		NumNodes: numNodes,
		NumEdges: numEdges,
		FirstOut: firstOut,
		Head:     head,
		Weight:   weight,
		Points:   make([]orb.Point, numNodes),
		OSMIDs:   make([]osm.NodeID, numNodes),
	}
}
