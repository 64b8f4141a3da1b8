package tilestore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts cache and load activity. A nil *Metrics records nothing.
type Metrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	loads      prometheus.Counter
	loadErrors prometheus.Counter
}

// NewMetrics creates store metrics registered on reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: "tile_router",
			Subsystem: "store",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		hits:       counter("hits_total", "Total tile lookups served from cache"),
		misses:     counter("misses_total", "Total tile lookups not in cache"),
		loads:      counter("loads_total", "Total tile routing contexts loaded from disk"),
		loadErrors: counter("load_errors_total", "Total failed tile loads"),
	}
}

func (m *Metrics) add(c func(*Metrics) prometheus.Counter) {
	if m != nil {
		c(m).Inc()
	}
}

func (m *Metrics) hit()       { m.add(func(m *Metrics) prometheus.Counter { return m.hits }) }
func (m *Metrics) miss()      { m.add(func(m *Metrics) prometheus.Counter { return m.misses }) }
func (m *Metrics) loaded()    { m.add(func(m *Metrics) prometheus.Counter { return m.loads }) }
func (m *Metrics) loadError() { m.add(func(m *Metrics) prometheus.Counter { return m.loadErrors }) }
