package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion outcomes, used as the "outcome" label.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeRejected = "rejected"
	OutcomeDenied   = "denied"
	OutcomeFailed   = "failed"
)

var (
	IngestRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_ingest_requests_total",
			Help: "Ingestion requests by outcome",
		},
		[]string{"outcome"},
	)

	IngestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collector_ingest_duration_seconds",
			Help:    "Time spent handling one ingestion request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// SideEffectErrors counts best-effort writes that failed without affecting the response.
	SideEffectErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_side_effect_errors_total",
			Help: "Failed best-effort writes (failure store, artifact file, mirror, event publish)",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(IngestRequests)
	prometheus.MustRegister(IngestLatency)
	prometheus.MustRegister(SideEffectErrors)
}
