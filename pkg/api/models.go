package api

// LatLngJSON represents a lat/lng pair in JSON.
type LatLngJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BorderNodeJSON is an ingoing or outgoing border node.
type BorderNodeJSON struct {
	ID             uint32     `json:"id"`
	AdjacencyIndex int        `json:"adjacency_index"`
	Location       LatLngJSON `json:"location"`
	Neighbor       string     `json:"neighbor,omitempty"` // outgoing nodes only
}

// TilesResponse is the JSON response for GET /api/v1/tiles.
type TilesResponse struct {
	Tiles []string `json:"tiles"`
}

// BorderResponse is the JSON response for GET /api/v1/tiles/{tile}/border.
type BorderResponse struct {
	Tile      string           `json:"tile"`
	Ingoing   []BorderNodeJSON `json:"ingoing"`
	Outgoing  []BorderNodeJSON `json:"outgoing"`
	Neighbors []string         `json:"neighbors"`
}

// NearestResponse is the JSON response for
// GET /api/v1/tiles/{tile}/nearest-ingoing.
type NearestResponse struct {
	Tile           string         `json:"tile"`
	Node           BorderNodeJSON `json:"node"`
	DistanceMeters float64        `json:"distance_meters"`
}

// CostResponse is the JSON response for GET /api/v1/tiles/{tile}/cost.
type CostResponse struct {
	Tile           string  `json:"tile"`
	In             int     `json:"in"`
	Out            int     `json:"out"`
	Reachable      bool    `json:"reachable"`
	CostMillimeter *uint32 `json:"cost_mm,omitempty"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	CachedTiles int    `json:"cached_tiles"`
}
