// Package metrics exposes Prometheus metrics for the anchor gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the anchor gateway counters.
type Metrics struct {
	Registrations   *prometheus.CounterVec
	Reconciliations prometheus.Counter
	Revocations     *prometheus.CounterVec
}

// New registers the metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docanchor",
			Subsystem: "anchor",
			Name:      "registrations_total",
			Help:      "Registration outcomes, by result.",
		}, []string{"result"}),
		Reconciliations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docanchor",
			Subsystem: "anchor",
			Name:      "reconciliations_total",
			Help:      "Verify-first reconciliations after an ambiguous register failure.",
		}),
		Revocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docanchor",
			Subsystem: "anchor",
			Name:      "revocations_total",
			Help:      "Revocation outcomes, by result.",
		}, []string{"result"}),
	}
}
