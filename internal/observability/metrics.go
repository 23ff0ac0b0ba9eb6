package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors exported on /metrics.
type Metrics struct {
	UpstreamCalls   *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
	StreamDeltas    prometheus.Counter
	Citations       prometheus.Counter
	MatchResults    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves them unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UpstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knowledge",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Upstream chat-completion calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "knowledge",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Upstream call latency until the response (or stream) completed.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"op"}),
		StreamDeltas: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knowledge",
			Subsystem: "relay",
			Name:      "deltas_total",
			Help:      "Content deltas forwarded to clients.",
		}),
		Citations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knowledge",
			Subsystem: "citation",
			Name:      "extracted_total",
			Help:      "Citations extracted from model answers.",
		}),
		MatchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knowledge",
			Subsystem: "matcher",
			Name:      "results_total",
			Help:      "Document match results by path taken.",
		}, []string{"path"}),
	}
	if reg != nil {
		reg.MustRegister(m.UpstreamCalls, m.UpstreamLatency, m.StreamDeltas, m.Citations, m.MatchResults)
	}
	return m
}
