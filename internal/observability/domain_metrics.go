package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexquery_queries_total",
			Help: "Total number of natural-language queries by intent and outcome.",
		},
		[]string{"intent", "outcome"},
	)
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexquery_guard_rejections_total",
			Help: "Total number of SQL candidates rejected by the guard, by rejection kind.",
		},
		[]string{"kind"},
	)
	synthesisLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hexquery_synthesis_latency_seconds",
			Help:    "Latency of the SQL synthesis completion call.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
	)
	executionLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hexquery_execution_latency_seconds",
			Help:    "Latency of backend query execution.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	costEstimateBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hexquery_cost_estimate_bytes",
			Help:    "Dry-run byte estimates reported by the backend for accepted and rejected queries.",
			Buckets: prometheus.ExponentialBuckets(1024, 8, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		guardRejectionsTotal,
		synthesisLatencySeconds,
		executionLatencySeconds,
		costEstimateBytes,
	)
}

func ObserveQuery(intent, outcome string) {
	queriesTotal.WithLabelValues(intent, outcome).Inc()
}

func ObserveGuardRejection(kind string) {
	guardRejectionsTotal.WithLabelValues(kind).Inc()
}

func ObserveSynthesisLatency(elapsed time.Duration) {
	synthesisLatencySeconds.Observe(elapsed.Seconds())
}

func ObserveExecutionLatency(elapsed time.Duration) {
	executionLatencySeconds.Observe(elapsed.Seconds())
}

func ObserveCostEstimate(bytes int64) {
	if bytes < 0 {
		return
	}
	costEstimateBytes.Observe(float64(bytes))
}
