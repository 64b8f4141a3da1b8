package crossctx

import "math"

// EdgeWeight is a tile-internal path cost in millimeters.
type EdgeWeight uint32

// NoPath is stored in every adjacency cell whose ingoing node cannot reach
// the outgoing node inside the tile. It is written to disk as-is, so a
// persisted cell holding math.MaxUint32 always means "no path".
const NoPath EdgeWeight = math.MaxUint32

// InvalidAdjacencyIndex is reported by nodes that were not produced by a
// Writer or a Reader, including zero-value nodes.
const InvalidAdjacencyIndex = -1

// nextAdjacencyIndex returns the adjacency index of the node about to be
// appended to a sequence that already holds count nodes of the same kind.
// Writer (insertion order) and Reader (read order) both go through here.
func nextAdjacencyIndex(count int) int {
	return count
}

// cellIndex addresses the row-major matrix: one row per ingoing node, one
// column per outgoing node.
func cellIndex(outgoingCount, in, out int) int {
	return outgoingCount*in + out
}

func newAdjacencyMatrix(ingoingCount, outgoingCount int) []EdgeWeight {
	m := make([]EdgeWeight, ingoingCount*outgoingCount)
	for i := range m {
		m[i] = NoPath
	}
	return m
}
