package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollwatch_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pollwatch_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// incidents submitted, by type and whether anonymous
	IncidentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollwatch_incidents_created_total",
			Help: "Total incident reports submitted",
		},
		[]string{"incident_type", "anonymous"},
	)

	// moderation status writes, by target status
	StatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollwatch_status_changes_total",
			Help: "Total incident status updates",
		},
		[]string{"status"},
	)

	IncidentsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pollwatch_incidents_deleted_total",
			Help: "Total incident reports deleted",
		},
	)

	// evidence files rejected by intake, by reason
	EvidenceRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollwatch_evidence_rejected_total",
			Help: "Total evidence uploads rejected",
		},
		[]string{"reason"},
	)

	EvidenceStoredBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pollwatch_evidence_stored_bytes_total",
			Help: "Total bytes of evidence written to storage",
		},
	)

	RateLimitHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pollwatch_ratelimit_hits_total",
			Help: "Total submissions rejected by the rate limiter",
		},
	)

	RateLimitRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pollwatch_ratelimit_requests_total",
			Help: "Total submissions checked by the rate limiter",
		},
	)

	// public list cache lookups labelled hit/miss/error
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollwatch_list_cache_lookups_total",
			Help: "Public incident list cache lookups",
		},
		[]string{"outcome"},
	)

	AnalyticsErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pollwatch_analytics_errors_total",
			Help: "Total lifecycle events that failed to record",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		IncidentsCreated,
		StatusChanges,
		IncidentsDeleted,
		EvidenceRejected,
		EvidenceStoredBytes,
		RateLimitHits,
		RateLimitRequests,
		CacheLookups,
		AnalyticsErrors,
	)
}
