package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the stage ledger.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	RejectedAppends prometheus.Counter
	StreamPublishes prometheus.Counter
	StreamDrops     prometheus.Counter
}

// New creates and registers ledger metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docanchor_stage_transitions_total",
			Help: "Stage transitions recorded in the ledger, by new stage and trigger",
		}, []string{"stage", "trigger"}),
		RejectedAppends: factory.NewCounter(prometheus.CounterOpts{
			Name: "docanchor_stage_appends_rejected_total",
			Help: "Stage event appends rejected by the forward-only invariant",
		}),
		StreamPublishes: factory.NewCounter(prometheus.CounterOpts{
			Name: "docanchor_stage_stream_publishes_total",
			Help: "Stage events published to the event stream",
		}),
		StreamDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "docanchor_stage_stream_drops_total",
			Help: "Stage events dropped because the stream buffer was full",
		}),
	}
}

// RecordTransition increments the transition counter.
func (m *Metrics) RecordTransition(stage, trigger string) {
	m.Transitions.WithLabelValues(stage, trigger).Inc()
}

// RecordRejectedAppend increments the rejected append counter.
func (m *Metrics) RecordRejectedAppend() {
	m.RejectedAppends.Inc()
}
