package crossctx

import (
	"bytes"
	"fmt"
	"io"
	"slices"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// NearestIngoingRadius is the search radius, in meters, used by
// FindNearestIngoingNode. Border nodes are assumed to lie farther apart.
const NearestIngoingRadius = 5.0

// Reader is a loaded, read-only tile routing context. After Load returns
// nil, all methods are safe for concurrent use.
type Reader struct {
	ingoing   []IngoingNode
	index     pointIndex
	outgoing  []OutgoingNode
	matrix    []EdgeWeight
	neighbors []string
}

// NewReader returns an empty Reader.
func NewReader() *Reader {
	return &Reader{}
}

// LoadBytes loads a context from b.
func (r *Reader) LoadBytes(b []byte) error {
	return r.Load(bytes.NewReader(b))
}

// Load decodes the layout written by Writer.Save, starting at offset 0 of
// src. On error the Reader is left empty; a short source yields an error
// wrapping ErrTruncated.
func (r *Reader) Load(src io.ReaderAt) error {
	loaded, err := load(&source{r: src})
	if err != nil {
		*r = *NewReader()
		return err
	}
	*r = *loaded
	return nil
}

func load(s *source) (*Reader, error) {
	r := NewReader()

	count, err := s.uint32("ingoing count")
	if err != nil {
		return nil, err
	}
	buf, err := s.records(count, ingoingNodeSize, "ingoing nodes")
	if err != nil {
		return nil, err
	}
	r.ingoing = make([]IngoingNode, 0, count)
	for off := 0; off < len(buf); off += ingoingNodeSize {
		n := decodeIngoingNode(buf[off:], nextAdjacencyIndex(len(r.ingoing)))
		r.ingoing = append(r.ingoing, n)
		r.index.insert(n)
	}

	count, err = s.uint32("outgoing count")
	if err != nil {
		return nil, err
	}
	buf, err = s.records(count, outgoingNodeSize, "outgoing nodes")
	if err != nil {
		return nil, err
	}
	r.outgoing = make([]OutgoingNode, 0, count)
	for off := 0; off < len(buf); off += outgoingNodeSize {
		r.outgoing = append(r.outgoing, decodeOutgoingNode(buf[off:], nextAdjacencyIndex(len(r.outgoing))))
	}

	cells := len(r.ingoing) * len(r.outgoing)
	if err := s.ensure(int64(cells)*4, "adjacency matrix"); err != nil {
		return nil, err
	}
	r.matrix = make([]EdgeWeight, cells)
	if err := s.read(weightBytes(r.matrix), "adjacency matrix"); err != nil {
		return nil, err
	}

	count, err = s.uint32("neighbor count")
	if err != nil {
		return nil, err
	}
	r.neighbors = make([]string, 0, min(count, 1024))
	for i := uint32(0); i < count; i++ {
		n, err := s.uint32("neighbor name length")
		if err != nil {
			return nil, err
		}
		if err := s.ensure(int64(n), "neighbor name"); err != nil {
			return nil, err
		}
		name := make([]byte, n)
		if err := s.read(name, "neighbor name"); err != nil {
			return nil, err
		}
		r.neighbors = append(r.neighbors, string(name))
	}

	return r, nil
}

// FindNearestIngoingNode returns an ingoing node within NearestIngoingRadius
// of p. When several qualify, the first one the index visits wins; no
// distance ranking is done.
func (r *Reader) FindNearestIngoingNode(p orb.Point) (IngoingNode, bool) {
	var (
		found IngoingNode
		ok    bool
	)
	r.index.search(orbgeo.NewBoundAroundPoint(p, NearestIngoingRadius), func(n IngoingNode) bool {
		found, ok = n, true
		return false
	})
	return found, ok
}

// OutgoingNeighborName returns the name of the tile n leads to. An index
// outside the neighbor list means the node belongs to another context or
// the data is corrupt, and panics.
func (r *Reader) OutgoingNeighborName(n OutgoingNode) string {
	if int(n.NeighborIndex) >= len(r.neighbors) {
		panic(fmt.Sprintf("crossctx: neighbor index %d out of range, context has %d neighbor tiles",
			n.NeighborIndex, len(r.neighbors)))
	}
	return r.neighbors[n.NeighborIndex]
}

// AdjacencyCost returns the tile-internal cost from in to out, or NoPath when
// there is no path or either node has no valid index in this context.
func (r *Reader) AdjacencyCost(in IngoingNode, out OutgoingNode) EdgeWeight {
	i, o := in.AdjacencyIndex(), out.AdjacencyIndex()
	if i < 0 || o < 0 || o >= len(r.outgoing) {
		return NoPath
	}
	idx := cellIndex(len(r.outgoing), i, o)
	if idx >= len(r.matrix) {
		return NoPath
	}
	return r.matrix[idx]
}

// AllIngoingNodes returns every ingoing node in spatial index order.
func (r *Reader) AllIngoingNodes() []IngoingNode {
	nodes := make([]IngoingNode, 0, r.index.len())
	r.index.forEach(func(n IngoingNode) bool {
		nodes = append(nodes, n)
		return true
	})
	return nodes
}

// IngoingNodes returns the ingoing nodes in adjacency index order.
func (r *Reader) IngoingNodes() []IngoingNode {
	return slices.Clone(r.ingoing)
}

// OutgoingNodes returns the outgoing nodes in adjacency index order.
func (r *Reader) OutgoingNodes() []OutgoingNode {
	return slices.Clone(r.outgoing)
}

// NeighborTiles returns the neighbor tile names in index order.
func (r *Reader) NeighborTiles() []string {
	return slices.Clone(r.neighbors)
}

// IngoingNodeAt returns the ingoing node with adjacency index i.
func (r *Reader) IngoingNodeAt(i int) (IngoingNode, bool) {
	if i < 0 || i >= len(r.ingoing) {
		return IngoingNode{}, false
	}
	return r.ingoing[i], true
}

// OutgoingNodeAt returns the outgoing node with adjacency index i.
func (r *Reader) OutgoingNodeAt(i int) (OutgoingNode, bool) {
	if i < 0 || i >= len(r.outgoing) {
		return OutgoingNode{}, false
	}
	return r.outgoing[i], true
}

// IngoingCount returns the number of ingoing nodes, the matrix row count.
func (r *Reader) IngoingCount() int { return len(r.ingoing) }

// OutgoingCount returns the number of outgoing nodes, the matrix column count.
func (r *Reader) OutgoingCount() int { return len(r.outgoing) }

// IngoingNodeByID returns the ingoing node with the given graph id.
func (r *Reader) IngoingNodeByID(id NodeID) (IngoingNode, bool) {
	i := slices.IndexFunc(r.ingoing, func(n IngoingNode) bool { return n.ID == id })
	if i < 0 {
		return IngoingNode{}, false
	}
	return r.ingoing[i], true
}

// OutgoingNodesTo returns the outgoing nodes leading to tile, in index order.
func (r *Reader) OutgoingNodesTo(tile string) []OutgoingNode {
	ni := slices.Index(r.neighbors, tile)
	if ni < 0 {
		return nil
	}
	var nodes []OutgoingNode
	for _, n := range r.outgoing {
		if n.NeighborIndex == uint32(ni) {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
