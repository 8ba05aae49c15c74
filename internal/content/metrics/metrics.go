// Package metrics exposes Prometheus metrics for the content gate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the content-addressing counters.
type Metrics struct {
	DuplicateHits prometheus.Counter
	SniffRejects  *prometheus.CounterVec
}

// New registers the metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DuplicateHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docanchor",
			Subsystem: "content",
			Name:      "duplicate_hits_total",
			Help:      "Uploads short-circuited by the per-uploader duplicate check.",
		}),
		SniffRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docanchor",
			Subsystem: "content",
			Name:      "sniff_rejects_total",
			Help:      "Uploads rejected by file type sniffing.",
		}, []string{"reason"}),
	}
}
