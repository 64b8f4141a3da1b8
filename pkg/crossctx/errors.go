package crossctx

import "errors"

var (
	// ErrTruncated is returned by Load when the byte source ends before the
	// layout is complete. The tile's cross-border data is unusable.
	ErrTruncated = errors.New("crossctx: truncated routing context")

	// ErrMatrixSize is returned by Save when the adjacency matrix does not
	// hold exactly ingoing x outgoing cells: ReserveAdjacencyMatrix was not
	// called, or nodes were added after it.
	ErrMatrixSize = errors.New("crossctx: adjacency matrix size mismatch")
)
