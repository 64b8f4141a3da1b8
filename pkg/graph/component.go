package graph

// disjointSet is a union-find over node ids with path halving and union by size.
type disjointSet struct {
	parent []uint32
	size   []uint32
}

func newDisjointSet(n uint32) *disjointSet {
	ds := &disjointSet{parent: make([]uint32, n), size: make([]uint32, n)}
	for i := range n {
		ds.parent[i] = i
		ds.size[i] = 1
	}
	return ds
}

func (ds *disjointSet) find(x uint32) uint32 {
	for ds.parent[x] != x {
		ds.parent[x] = ds.parent[ds.parent[x]]
		x = ds.parent[x]
	}
	return x
}

func (ds *disjointSet) union(x, y uint32) {
	rx, ry := ds.find(x), ds.find(y)
	if rx == ry {
		return
	}
	if ds.size[rx] < ds.size[ry] {
		rx, ry = ry, rx
	}
	ds.parent[ry] = rx
	ds.size[rx] += ds.size[ry]
}

// LargestComponent returns the node ids of the largest weakly connected
// component, in ascending order.
func LargestComponent(g *Graph) []uint32 {
	if g.NumNodes == 0 {
		return nil
	}

	ds := newDisjointSet(g.NumNodes)
	for u := range g.NumNodes {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			ds.union(u, g.Head[e])
		}
	}

	var best, bestSize uint32
	for i := range g.NumNodes {
		if root := ds.find(i); ds.size[root] > bestSize {
			best, bestSize = root, ds.size[root]
		}
	}

	nodes := make([]uint32, 0, bestSize)
	for i := range g.NumNodes {
		if ds.find(i) == best {
			nodes = append(nodes, i)
		}
	}
	return nodes
}

// Subgraph returns the subgraph induced by nodes. Node i of the result is
// nodes[i] of g; only edges with both endpoints in nodes are kept.
func Subgraph(g *Graph, nodes []uint32) *Graph {
	local := make(map[uint32]uint32, len(nodes))
	for i, u := range nodes {
		local[u] = uint32(i)
	}

	var edges []edge
	for i, u := range nodes {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			if v, ok := local[g.Head[e]]; ok {
				edges = append(edges, edge{from: uint32(i), to: v, weight: g.Weight[e]})
			}
		}
	}

	sub := newGraph(uint32(len(nodes)), edges)
	for i, u := range nodes {
		sub.Points[i] = g.Points[u]
		if g.OSMIDs != nil {
			sub.OSMIDs[i] = g.OSMIDs[u]
		}
	}
	return sub
}
