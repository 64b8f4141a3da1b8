package crossctx

import (
	"encoding/binary"

	"github.com/paulmach/orb"

	"tile_router/pkg/geo"
)

// NodeID identifies a node in the tile's road graph.
type NodeID uint32

// On-disk record sizes: id, packed point[, neighbor index].
const (
	ingoingNodeSize  = 4 + 8
	outgoingNodeSize = ingoingNodeSize + 4
)

// IngoingNode is a border node through which paths enter the tile.
type IngoingNode struct {
	ID    NodeID
	Point orb.Point

	// slot is the adjacency index + 1, so the zero value is invalid.
	slot int
}

func newIngoingNode(id NodeID, p orb.Point, adjacencyIndex int) IngoingNode {
	return IngoingNode{ID: id, Point: p, slot: adjacencyIndex + 1}
}

// AdjacencyIndex returns the node's matrix row, or InvalidAdjacencyIndex.
func (n IngoingNode) AdjacencyIndex() int {
	return n.slot - 1
}

func (n IngoingNode) appendBinary(b []byte) []byte {
	b = binary.NativeEndian.AppendUint32(b, uint32(n.ID))
	return binary.NativeEndian.AppendUint64(b, geo.PackPoint(n.Point, geo.CoordBits))
}

// decodeIngoingNode reads one record from b, which must hold at least
// ingoingNodeSize bytes.
func decodeIngoingNode(b []byte, adjacencyIndex int) IngoingNode {
	_ = b[ingoingNodeSize-1]
	return newIngoingNode(
		NodeID(binary.NativeEndian.Uint32(b[0:4])),
		geo.UnpackPoint(binary.NativeEndian.Uint64(b[4:12]), geo.CoordBits),
		adjacencyIndex,
	)
}

// OutgoingNode is a border node through which paths leave the tile toward
// the neighbor tile at NeighborIndex in the context's neighbor list.
type OutgoingNode struct {
	ID            NodeID
	Point         orb.Point
	NeighborIndex uint32

	// slot is the adjacency index + 1, so the zero value is invalid.
	slot int
}

func newOutgoingNode(id NodeID, p orb.Point, neighborIndex uint32, adjacencyIndex int) OutgoingNode {
	return OutgoingNode{ID: id, Point: p, NeighborIndex: neighborIndex, slot: adjacencyIndex + 1}
}

// AdjacencyIndex returns the node's matrix column, or InvalidAdjacencyIndex.
func (n OutgoingNode) AdjacencyIndex() int {
	return n.slot - 1
}

func (n OutgoingNode) appendBinary(b []byte) []byte {
	b = binary.NativeEndian.AppendUint32(b, uint32(n.ID))
	b = binary.NativeEndian.AppendUint64(b, geo.PackPoint(n.Point, geo.CoordBits))
	return binary.NativeEndian.AppendUint32(b, n.NeighborIndex)
}

// decodeOutgoingNode reads one record from b, which must hold at least
// outgoingNodeSize bytes. NeighborIndex is not range checked here.
func decodeOutgoingNode(b []byte, adjacencyIndex int) OutgoingNode {
	_ = b[outgoingNodeSize-1]
	return newOutgoingNode(
		NodeID(binary.NativeEndian.Uint32(b[0:4])),
		geo.UnpackPoint(binary.NativeEndian.Uint64(b[4:12]), geo.CoordBits),
		binary.NativeEndian.Uint32(b[12:16]),
		adjacencyIndex,
	)
}
