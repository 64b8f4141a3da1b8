// Package crossctx stores how a routing tile connects to its neighbors.
//
// A context lists the tile's ingoing border nodes (where paths enter), its
// outgoing border nodes (where paths leave, each tagged with the neighbor
// tile it leads to) and a dense matrix of tile-internal shortest-path costs
// from every ingoing to every outgoing node. A cross-tile router stitches
// paths at the borders with these costs instead of searching inside tiles.
//
// Writer builds and serializes a context during preprocessing; Reader loads
// it once per tile and answers border queries. The encoding is positional,
// unversioned and in host byte order.
package crossctx
