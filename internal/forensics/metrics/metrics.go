// Package metrics exposes Prometheus metrics for the forensics gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the forensics gateway counters.
type Metrics struct {
	SubmitAttempts prometheus.Counter
	SubmitRetries  prometheus.Counter
	SubmitFailures *prometheus.CounterVec
	WebhookEvents  *prometheus.CounterVec
}

// New registers the metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmitAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docanchor",
			Subsystem: "forensics",
			Name:      "submit_attempts_total",
			Help:      "Analysis submit attempts, including retries.",
		}),
		SubmitRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docanchor",
			Subsystem: "forensics",
			Name:      "submit_retries_total",
			Help:      "Submit attempts that were retries of a transient failure.",
		}),
		SubmitFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docanchor",
			Subsystem: "forensics",
			Name:      "submit_failures_total",
			Help:      "Submits that failed for good, by error class.",
		}, []string{"class"}),
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docanchor",
			Subsystem: "forensics",
			Name:      "webhook_events_total",
			Help:      "Inbound webhook deliveries, by outcome.",
		}, []string{"outcome"}),
	}
}
