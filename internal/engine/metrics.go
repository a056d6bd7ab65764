package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "toolbench"

// Invocation outcomes used as the "result" label.
const (
	resultCommitted   = "committed"
	resultRejected    = "rejected"
	resultReplayDrift = "replay_drift"
	resultNotFound    = "not_found"
	resultError       = "error"
	resultOK          = "ok"
	resultSynthesis   = "synthesis_error"
)

type metrics struct {
	selects      *prometheus.CounterVec
	invocations  *prometheus.CounterVec
	replayLength prometheus.Histogram
	duration     *prometheus.HistogramVec
	unitBuilds   prometheus.Counter
	dropped      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		selects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "selects_total",
			Help:      "Environment/interface selections by result.",
		}, []string{"result"}),
		invocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "invocations_total",
			Help:      "Tool invocations by result.",
		}, []string{"result"}),
		replayLength: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "replay_length",
			Help:      "Number of history entries replayed per operation.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Duration of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		unitBuilds: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "unit_builds_total",
			Help:      "Tool units synthesized, including rebuilds after cache eviction.",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "commit_events_dropped_total",
			Help:      "Commit events not delivered to a slow subscriber.",
		}),
	}
}
