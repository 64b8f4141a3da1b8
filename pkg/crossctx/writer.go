package crossctx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/paulmach/orb"
)

// Writer assembles a tile's routing context during preprocessing.
//
// Usage: add every ingoing and outgoing node, call ReserveAdjacencyMatrix,
// fill costs with SetAdjacencyCost while iterating IngoingNodes and
// OutgoingNodes, then Save. A Writer is owned by a single goroutine.
type Writer struct {
	ingoing   []IngoingNode
	outgoing  []OutgoingNode
	matrix    []EdgeWeight
	neighbors []string
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// AddIngoingNode appends an ingoing node. Its adjacency index is the number
// of ingoing nodes added before it.
func (w *Writer) AddIngoingNode(id NodeID, p orb.Point) {
	idx := nextAdjacencyIndex(len(w.ingoing))
	w.ingoing = append(w.ingoing, newIngoingNode(id, p, idx))
}

// AddOutgoingNode appends an outgoing node leading to neighborTile.
func (w *Writer) AddOutgoingNode(id NodeID, neighborTile string, p orb.Point) {
	idx := nextAdjacencyIndex(len(w.outgoing))
	w.outgoing = append(w.outgoing, newOutgoingNode(id, p, w.intern(neighborTile), idx))
}

// intern returns the position of name in the neighbor list, appending it
// first if absent. Positions stay in insertion order.
func (w *Writer) intern(name string) uint32 {
	if i := slices.Index(w.neighbors, name); i >= 0 {
		return uint32(i)
	}
	w.neighbors = append(w.neighbors, name)
	return uint32(len(w.neighbors) - 1)
}

// ReserveAdjacencyMatrix allocates the ingoing x outgoing cost matrix with
// every cell set to NoPath. Call it after the last node is added.
func (w *Writer) ReserveAdjacencyMatrix() {
	w.matrix = newAdjacencyMatrix(len(w.ingoing), len(w.outgoing))
}

// SetAdjacencyCost stores the cost from in to out. Both nodes must come from
// this Writer and the matrix must be reserved; anything else panics.
func (w *Writer) SetAdjacencyCost(in IngoingNode, out OutgoingNode, weight EdgeWeight) {
	i, o := in.AdjacencyIndex(), out.AdjacencyIndex()
	idx := cellIndex(len(w.outgoing), i, o)
	if i < 0 || o < 0 || o >= len(w.outgoing) || idx >= len(w.matrix) {
		panic(fmt.Sprintf("crossctx: adjacency cell (%d, %d) out of range for %d x %d matrix of %d cells",
			i, o, len(w.ingoing), len(w.outgoing), len(w.matrix)))
	}
	w.matrix[idx] = weight
}

// IngoingNodes returns the ingoing nodes in insertion order.
func (w *Writer) IngoingNodes() []IngoingNode {
	return slices.Clone(w.ingoing)
}

// OutgoingNodes returns the outgoing nodes in insertion order.
func (w *Writer) OutgoingNodes() []OutgoingNode {
	return slices.Clone(w.outgoing)
}

// NeighborTiles returns the interned neighbor tile names in index order.
func (w *Writer) NeighborTiles() []string {
	return slices.Clone(w.neighbors)
}

// Save serializes the context:
//
//	u32 ingoing count, ingoing records {u32 id, u64 point}
//	u32 outgoing count, outgoing records {u32 id, u64 point, u32 neighbor}
//	ingoing*outgoing u32 weights, row-major by ingoing node
//	u32 neighbor count, neighbors {u32 length, bytes}
//
// All integers use host byte order. Nothing is written if the matrix does
// not match the node counts.
func (w *Writer) Save(out io.Writer) error {
	if want := len(w.ingoing) * len(w.outgoing); len(w.matrix) != want {
		return fmt.Errorf("%w: %d cells, want %d x %d", ErrMatrixSize, len(w.matrix), len(w.ingoing), len(w.outgoing))
	}

	buf := make([]byte, 0, 4+len(w.ingoing)*ingoingNodeSize)
	buf = binary.NativeEndian.AppendUint32(buf, uint32(len(w.ingoing)))
	for _, n := range w.ingoing {
		buf = n.appendBinary(buf)
	}
	if _, err := out.Write(buf); err != nil {
		return fmt.Errorf("write ingoing nodes: %w", err)
	}

	buf = make([]byte, 0, 4+len(w.outgoing)*outgoingNodeSize)
	buf = binary.NativeEndian.AppendUint32(buf, uint32(len(w.outgoing)))
	for _, n := range w.outgoing {
		buf = n.appendBinary(buf)
	}
	if _, err := out.Write(buf); err != nil {
		return fmt.Errorf("write outgoing nodes: %w", err)
	}

	if err := writeWeights(out, w.matrix); err != nil {
		return fmt.Errorf("write adjacency matrix: %w", err)
	}

	buf = binary.NativeEndian.AppendUint32(buf[:0], uint32(len(w.neighbors)))
	for _, name := range w.neighbors {
		buf = binary.NativeEndian.AppendUint32(buf, uint32(len(name)))
		buf = append(buf, name...)
	}
	if _, err := out.Write(buf); err != nil {
		return fmt.Errorf("write neighbor tiles: %w", err)
	}
	return nil
}

// MarshalBinary returns the bytes Save would write.
func (w *Writer) MarshalBinary() ([]byte, error) {
	var b bytes.Buffer
	if err := w.Save(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
