package tilebuild

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts build progress. A nil *Metrics records nothing.
type Metrics struct {
	tiles       prometheus.Counter
	borderNodes *prometheus.CounterVec
	pairs       prometheus.Counter
}

// NewMetrics creates build metrics registered on reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tiles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tile_router",
			Subsystem: "build",
			Name:      "tiles_total",
			Help:      "Total tile files written",
		}),
		borderNodes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tile_router",
			Subsystem: "build",
			Name:      "border_nodes_total",
			Help:      "Total border nodes written, by kind",
		}, []string{"kind"}),
		pairs: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tile_router",
			Subsystem: "build",
			Name:      "reachable_pairs_total",
			Help:      "Total ingoing/outgoing pairs with a tile-internal path",
		}),
	}
}

func (m *Metrics) recordTile(s Summary) {
	if m == nil {
		return
	}
	m.tiles.Add(float64(s.Tiles))
	m.borderNodes.WithLabelValues("ingoing").Add(float64(s.IngoingNodes))
	m.borderNodes.WithLabelValues("outgoing").Add(float64(s.OutgoingNodes))
	m.pairs.Add(float64(s.ReachablePairs))
}
