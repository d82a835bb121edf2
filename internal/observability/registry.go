package observability

import (
	"strconv"
	"time"
)

// MetricsRegistry is the only way components record metrics.
//
// Handlers, the incident service, evidence intake, the rate limiter and the
// analytics sink all receive a MetricsRegistry through their constructors
// instead of touching the Prometheus collectors in metrics.go. Production
// wiring passes a PrometheusRegistry, whose values are exposed on /metrics;
// tests pass a NoOpRegistry, or nil where a constructor accepts it.
//
// Example usage:
//
//	metrics := observability.NewPrometheusRegistry()
//	svc := incidents.NewService(store, logger, metrics)
//	limiter := ratelimit.NewCallerLimiter(cfg, metrics)
//
// Label values are low cardinality: endpoint names, HTTP methods and status
// codes, incident types, moderation statuses and rejection reasons. Incident
// and caller ids are never used as labels.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Incident lifecycle metrics
	IncrementIncidentsCreated(incidentType string, anonymous bool)
	IncrementStatusChanges(status string)
	IncrementIncidentsDeleted()

	// Evidence intake metrics
	IncrementEvidenceRejected(reason string)
	AddEvidenceStoredBytes(n int64)

	// Rate limiting metrics
	IncrementRateLimitRequests()
	IncrementRateLimitHits()

	// Cache metrics
	IncrementCacheLookups(outcome string)

	// Analytics sink metrics
	IncrementAnalyticsErrors()
}

// PrometheusRegistry implements MetricsRegistry on top of the package-level
// collectors registered in metrics.go. It holds no state, so any number of
// instances share the same series.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementIncidentsCreated(incidentType string, anonymous bool) {
	IncidentsCreated.WithLabelValues(incidentType, strconv.FormatBool(anonymous)).Inc()
}

func (r *PrometheusRegistry) IncrementStatusChanges(status string) {
	StatusChanges.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementIncidentsDeleted() {
	IncidentsDeleted.Inc()
}

func (r *PrometheusRegistry) IncrementEvidenceRejected(reason string) {
	EvidenceRejected.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) AddEvidenceStoredBytes(n int64) {
	EvidenceStoredBytes.Add(float64(n))
}

func (r *PrometheusRegistry) IncrementRateLimitRequests() {
	RateLimitRequests.Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits() {
	RateLimitHits.Inc()
}

func (r *PrometheusRegistry) IncrementCacheLookups(outcome string) {
	CacheLookups.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementAnalyticsErrors() {
	AnalyticsErrors.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementIncidentsCreated(incidentType string, anonymous bool)        {}
func (r *NoOpRegistry) IncrementStatusChanges(status string)                                 {}
func (r *NoOpRegistry) IncrementIncidentsDeleted()                                           {}
func (r *NoOpRegistry) IncrementEvidenceRejected(reason string)                              {}
func (r *NoOpRegistry) AddEvidenceStoredBytes(n int64)                                       {}
func (r *NoOpRegistry) IncrementRateLimitRequests()                                          {}
func (r *NoOpRegistry) IncrementRateLimitHits()                                              {}
func (r *NoOpRegistry) IncrementCacheLookups(outcome string)                                 {}
func (r *NoOpRegistry) IncrementAnalyticsErrors()                                            {}
