package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"go.uber.org/zap"

	"tile_router/pkg/crossctx"
	"tile_router/pkg/tilestore"
)

// TileSource provides tile routing contexts by name.
type TileSource interface {
	Get(ctx context.Context, name string) (*crossctx.Reader, error)
	Tiles() ([]string, error)
	Cached() int
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	tiles TileSource
	log   *zap.Logger
}

// NewHandlers creates handlers serving tiles from src.
func NewHandlers(src TileSource, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{tiles: src, log: log}
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", CachedTiles: h.tiles.Cached()})
}

// HandleTiles handles GET /api/v1/tiles.
func (h *Handlers) HandleTiles(w http.ResponseWriter, r *http.Request) {
	names, err := h.tiles.Tiles()
	if err != nil {
		h.log.Error("list tiles", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, TilesResponse{Tiles: names})
}

// HandleBorder handles GET /api/v1/tiles/{tile}/border.
func (h *Handlers) HandleBorder(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("tile")
	rc, ok := h.loadTile(w, r, name)
	if !ok {
		return
	}

	resp := BorderResponse{
		Tile:      name,
		Ingoing:   make([]BorderNodeJSON, 0, rc.IngoingCount()),
		Outgoing:  make([]BorderNodeJSON, 0, rc.OutgoingCount()),
		Neighbors: rc.NeighborTiles(),
	}
	for _, n := range rc.IngoingNodes() {
		resp.Ingoing = append(resp.Ingoing, ingoingJSON(n))
	}
	for _, n := range rc.OutgoingNodes() {
		resp.Outgoing = append(resp.Outgoing, outgoingJSON(rc, n))
	}
	writeJSON(w, resp)
}

// HandleNearestIngoing handles GET /api/v1/tiles/{tile}/nearest-ingoing?lat=&lng=.
func (h *Handlers) HandleNearestIngoing(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "lat")
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "lng")
		return
	}
	ll := LatLngJSON{Lat: lat, Lng: lng}
	if err := validateCoord(ll); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "")
		return
	}

	name := r.PathValue("tile")
	rc, ok := h.loadTile(w, r, name)
	if !ok {
		return
	}

	p := orb.Point{lng, lat}
	n, found := rc.FindNearestIngoingNode(p)
	if !found {
		writeError(w, http.StatusNotFound, "no_border_node_nearby", "")
		return
	}
	writeJSON(w, NearestResponse{
		Tile:           name,
		Node:           ingoingJSON(n),
		DistanceMeters: orbgeo.DistanceHaversine(p, n.Point),
	})
}

// HandleCost handles GET /api/v1/tiles/{tile}/cost?in=&out=, where in and
// out are adjacency indices.
func (h *Handlers) HandleCost(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in, err := strconv.Atoi(q.Get("in"))
	if err != nil || in < 0 {
		writeError(w, http.StatusBadRequest, "invalid_index", "in")
		return
	}
	out, err := strconv.Atoi(q.Get("out"))
	if err != nil || out < 0 {
		writeError(w, http.StatusBadRequest, "invalid_index", "out")
		return
	}

	name := r.PathValue("tile")
	rc, ok := h.loadTile(w, r, name)
	if !ok {
		return
	}

	inNode, ok := rc.IngoingNodeAt(in)
	if !ok {
		writeError(w, http.StatusNotFound, "node_not_found", "in")
		return
	}
	outNode, ok := rc.OutgoingNodeAt(out)
	if !ok {
		writeError(w, http.StatusNotFound, "node_not_found", "out")
		return
	}

	resp := CostResponse{Tile: name, In: in, Out: out}
	if cost := rc.AdjacencyCost(inNode, outNode); cost != crossctx.NoPath {
		c := uint32(cost)
		resp.Reachable = true
		resp.CostMillimeter = &c
	}
	writeJSON(w, resp)
}

// loadTile fetches the named tile, writing an error response on failure.
func (h *Handlers) loadTile(w http.ResponseWriter, r *http.Request, name string) (*crossctx.Reader, bool) {
	rc, err := h.tiles.Get(r.Context(), name)
	switch {
	case err == nil:
		return rc, true
	case errors.Is(err, tilestore.ErrInvalidTileName):
		writeError(w, http.StatusBadRequest, "invalid_tile", "tile")
	case errors.Is(err, tilestore.ErrTileNotFound):
		writeError(w, http.StatusNotFound, "tile_not_found", "tile")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
	default:
		h.log.Error("load tile", zap.String("tile", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
	return nil, false
}

func ingoingJSON(n crossctx.IngoingNode) BorderNodeJSON {
	return BorderNodeJSON{
		ID:             uint32(n.ID),
		AdjacencyIndex: n.AdjacencyIndex(),
		Location:       LatLngJSON{Lat: n.Point.Lat(), Lng: n.Point.Lon()},
	}
}

func outgoingJSON(rc *crossctx.Reader, n crossctx.OutgoingNode) BorderNodeJSON {
	return BorderNodeJSON{
		ID:             uint32(n.ID),
		AdjacencyIndex: n.AdjacencyIndex(),
		Location:       LatLngJSON{Lat: n.Point.Lat(), Lng: n.Point.Lon()},
		Neighbor:       rc.OutgoingNeighborName(n),
	}
}

func validateCoord(ll LatLngJSON) error {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lat, 0) || math.IsInf(ll.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if ll.Lat < -90 || ll.Lat > 90 || ll.Lng < -180 || ll.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Field: field})
}
