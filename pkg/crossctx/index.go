package crossctx

import (
	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// pointIndex is the spatial index over a tile's ingoing nodes.
type pointIndex struct {
	tree rtree.RTreeG[IngoingNode]
}

func (ix *pointIndex) insert(n IngoingNode) {
	p := [2]float64{n.Point[0], n.Point[1]}
	ix.tree.Insert(p, p, n)
}

// search visits nodes inside b until visit returns false. Visit order is the
// tree's traversal order, not distance order.
func (ix *pointIndex) search(b orb.Bound, visit func(IngoingNode) bool) {
	ix.tree.Search(
		[2]float64{b.Min[0], b.Min[1]},
		[2]float64{b.Max[0], b.Max[1]},
		func(_, _ [2]float64, n IngoingNode) bool { return visit(n) },
	)
}

func (ix *pointIndex) forEach(visit func(IngoingNode) bool) {
	ix.tree.Scan(func(_, _ [2]float64, n IngoingNode) bool { return visit(n) })
}

func (ix *pointIndex) len() int {
	return ix.tree.Len()
}
