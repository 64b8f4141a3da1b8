package osm

import (
	"context"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"

	"tile_router/pkg/geo"
)

// RawEdge represents a directed edge parsed from OSM data.
type RawEdge struct {
	FromNodeID osm.NodeID
	ToNodeID   osm.NodeID
	Weight     uint32 // distance in millimeters
}

// ParseResult holds the output of parsing an OSM PBF file.
type ParseResult struct {
	Edges []RawEdge
	Nodes map[osm.NodeID]orb.Point
}

// carHighways lists highway tag values accessible by car.
var carHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// isCarAccessible returns true if the way is drivable by car.
func isCarAccessible(tags osm.Tags) bool {
	if !carHighways[tags.Find("highway")] || tags.Find("area") == "yes" {
		return false
	}
	switch tags.Find("access") {
	case "no", "private":
		return false
	}
	return tags.Find("motor_vehicle") != "no"
}

// directionFlags returns (forward, backward) based on highway type and oneway tags.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	forward, backward = true, true

	hw := tags.Find("highway")
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	switch tags.Find("oneway") {
	case "yes", "true", "1":
		forward, backward = true, false
	case "-1", "reverse":
		forward, backward = false, true
	case "no":
		forward, backward = true, true
	case "reversible":
		// Time-dependent, skipped.
		forward, backward = false, false
	}
	return forward, backward
}

// Way is a drivable way reduced to what edge building needs.
type Way struct {
	NodeIDs  []osm.NodeID
	Forward  bool
	Backward bool
}

// WayFromOSM keeps car-accessible ways with at least one travel direction.
func WayFromOSM(w *osm.Way) (Way, bool) {
	if len(w.Nodes) < 2 || !isCarAccessible(w.Tags) {
		return Way{}, false
	}
	fwd, bwd := directionFlags(w.Tags)
	if !fwd && !bwd {
		return Way{}, false
	}
	ids := make([]osm.NodeID, len(w.Nodes))
	for i, wn := range w.Nodes {
		ids[i] = wn.ID
	}
	return Way{NodeIDs: ids, Forward: fwd, Backward: bwd}, true
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	// Bound, if non-zero, keeps only edges with both endpoints inside it.
	Bound  orb.Bound
	Logger *zap.Logger
}

func (o ParseOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Parse reads an OSM PBF file and returns directed edges for car routing.
// The reader is scanned twice (ways, then the nodes they reference), so it
// must be seekable.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ParseOptions) (*ParseResult, error) {
	log := opts.logger()

	referenced := make(map[osm.NodeID]struct{})
	var ways []Way

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true
	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		way, ok := WayFromOSM(w)
		if !ok {
			continue
		}
		for _, id := range way.NodeIDs {
			referenced[id] = struct{}{}
		}
		ways = append(ways, way)
	}
	err := scanner.Err()
	scanner.Close()
	if err != nil {
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	log.Info("ways scanned", zap.Int("ways", len(ways)), zap.Int("referenced_nodes", len(referenced)))

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodes := make(map[osm.NodeID]orb.Point, len(referenced))
	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true
	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referenced[n.ID]; needed {
			nodes[n.ID] = orb.Point{n.Lon, n.Lat}
		}
	}
	err = scanner.Err()
	scanner.Close()
	if err != nil {
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	log.Info("node coordinates collected", zap.Int("nodes", len(nodes)))

	return &ParseResult{
		Edges: BuildEdges(ways, nodes, opts),
		Nodes: nodes,
	}, nil
}

// BuildEdges turns ways into directed, distance-weighted edges between
// consecutive way nodes.
func BuildEdges(ways []Way, nodes map[osm.NodeID]orb.Point, opts ParseOptions) []RawEdge {
	log := opts.logger()
	useBound := !opts.Bound.IsZero()

	var edges []RawEdge
	var missing, outside int
	for _, w := range ways {
		for i := 0; i+1 < len(w.NodeIDs); i++ {
			fromID, toID := w.NodeIDs[i], w.NodeIDs[i+1]
			from, fromOK := nodes[fromID]
			to, toOK := nodes[toID]
			if !fromOK || !toOK {
				missing++
				continue
			}
			if useBound && (!opts.Bound.Contains(from) || !opts.Bound.Contains(to)) {
				outside++
				continue
			}

			weight := geo.WeightMillimeters(from, to)
			if w.Forward {
				edges = append(edges, RawEdge{FromNodeID: fromID, ToNodeID: toID, Weight: weight})
			}
			if w.Backward {
				edges = append(edges, RawEdge{FromNodeID: toID, ToNodeID: fromID, Weight: weight})
			}
		}
	}

	if missing > 0 {
		log.Warn("skipped edges with missing node coordinates", zap.Int("edges", missing))
	}
	if outside > 0 {
		log.Info("filtered edges outside bound", zap.Int("edges", outside))
	}
	log.Info("built directed edges", zap.Int("edges", len(edges)))
	return edges
}
