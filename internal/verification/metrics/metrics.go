// Package metrics exposes Prometheus metrics for the orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the orchestrator gauges and counters.
type Metrics struct {
	QueueDepth     prometheus.Gauge
	ActiveJobs     prometheus.Gauge
	JobsFinished   *prometheus.CounterVec
	StageDurations *prometheus.HistogramVec
	DroppedEvents  *prometheus.CounterVec
}

// New registers the metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docanchor",
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker.",
		}),
		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docanchor",
			Subsystem: "pipeline",
			Name:      "active_jobs",
			Help:      "Jobs currently held by a worker.",
		}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docanchor",
			Subsystem: "pipeline",
			Name:      "jobs_finished_total",
			Help:      "Finished pipeline runs, by terminal stage.",
		}, []string{"stage"}),
		StageDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docanchor",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock time spent per stage.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
		DroppedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docanchor",
			Subsystem: "pipeline",
			Name:      "dropped_events_total",
			Help:      "Completion deliveries dropped as duplicates or stale.",
		}, []string{"reason"}),
	}
}
