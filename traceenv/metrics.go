package traceenv

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the SPEC_FULL instrumentation enrichment: counters/gauges
// for events consumed, spans completed per kind, unmatched-holdover size,
// and per-channel depth. Registered on a private registry so a caller can
// mount /metrics or skip it entirely without fighting the global default
// registry (aistore mounts its own registries per daemon the same way).
type Metrics struct {
	Registry *prometheus.Registry

	EventsConsumed    *prometheus.CounterVec
	SpansCompleted    *prometheus.CounterVec
	UnmatchedHoldover prometheus.Gauge
	ChannelDepth      *prometheus.GaugeVec
}

// NewMetrics builds and registers the trace-core metric set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simtrace",
			Name:      "events_consumed_total",
			Help:      "Events consumed by a spanner, by event kind.",
		}, []string{"kind"}),
		SpansCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simtrace",
			Name:      "spans_completed_total",
			Help:      "Spans marked complete, by span kind.",
		}, []string{"kind"}),
		UnmatchedHoldover: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simtrace",
			Name:      "unmatched_holdover_size",
			Help:      "Events currently held over awaiting a retry at end-of-stream (§4.10).",
		}),
		ChannelDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "simtrace",
			Name:      "channel_depth",
			Help:      "Number of values currently queued in a named pipeline channel.",
		}, []string{"channel"}),
	}
	reg.MustRegister(m.EventsConsumed, m.SpansCompleted, m.UnmatchedHoldover, m.ChannelDepth)
	return m
}
