// Package metrics provides Prometheus metrics for the term store
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the term store. All
// recording methods are nil-safe so tests can run without a registry.
type Metrics struct {
	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Working copy metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StoreObjectsTotal      *prometheus.GaugeVec
	StoreCommitsTotal      prometheus.Counter

	// Domain metrics
	RevisionsSavedTotal    prometheus.Counter
	RevisionsAcceptedTotal prometheus.Counter
	RebasesRequiredTotal   prometheus.Counter
	StageTransitionsTotal  *prometheus.CounterVec
	ReviewsCompletedTotal  *prometheus.CounterVec
	MigrationsAppliedTotal prometheus.Counter

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	// HTTP request metrics
	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termstore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"command", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "termstore_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "termstore_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Working copy metrics
	m.StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termstore_store_operations_total",
			Help: "Total number of working copy operations",
		},
		[]string{"operation", "status"},
	)

	m.StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "termstore_store_operation_duration_seconds",
			Help:    "Duration of working copy operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.StoreObjectsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "termstore_store_objects_total",
			Help: "Number of objects in the working copy per type",
		},
		[]string{"object_type"},
	)

	m.StoreCommitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "termstore_store_commits_total",
			Help: "Total number of working copy commits",
		},
	)

	// Domain metrics
	m.RevisionsSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "termstore_revisions_saved_total",
			Help: "Total number of revisions staged into change requests",
		},
	)

	m.RevisionsAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "termstore_revisions_accepted_total",
			Help: "Total number of staged revisions accepted into canon",
		},
	)

	m.RebasesRequiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "termstore_rebases_required_total",
			Help: "Total number of acceptances refused pending a rebase",
		},
	)

	m.StageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termstore_stage_transitions_total",
			Help: "Total number of change request stage transitions",
		},
		[]string{"stage"},
	)

	m.ReviewsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termstore_reviews_completed_total",
			Help: "Total number of completed reviews",
		},
		[]string{"outcome"},
	)

	m.MigrationsAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "termstore_migrations_applied_total",
			Help: "Total number of schema migrations applied on read",
		},
	)

	// Server metrics
	m.ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "termstore_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	go m.updateUptime()

	return m
}

// updateUptime periodically updates the server uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// HTTPRequestsInFlightInc increments the in-flight request gauge
func (m *Metrics) HTTPRequestsInFlightInc() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

// HTTPRequestsInFlightDec decrements the in-flight request gauge
func (m *Metrics) HTTPRequestsInFlightDec() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

// RecordHTTPRequest records a completed HTTP request
func (m *Metrics) RecordHTTPRequest(command string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(command, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordStoreOperation records a working copy operation
func (m *Metrics) RecordStoreOperation(operation string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStageTransition records a change request stage transition
func (m *Metrics) RecordStageTransition(stage string) {
	if m == nil {
		return
	}
	m.StageTransitionsTotal.WithLabelValues(stage).Inc()
}

// RecordRevisionSaved records a revision staged into a change request
func (m *Metrics) RecordRevisionSaved() {
	if m == nil {
		return
	}
	m.RevisionsSavedTotal.Inc()
}

// RecordAcceptance records the outcome of an acceptance attempt
func (m *Metrics) RecordAcceptance(needsRebase bool) {
	if m == nil {
		return
	}
	if needsRebase {
		m.RebasesRequiredTotal.Inc()
		return
	}
	m.RevisionsAcceptedTotal.Inc()
}

// RecordReviewCompleted records a completed review by outcome
func (m *Metrics) RecordReviewCompleted(approved bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	m.ReviewsCompletedTotal.WithLabelValues(outcome).Inc()
}

// UpdateObjectCount updates the per-type object gauge
func (m *Metrics) UpdateObjectCount(objectType string, count int) {
	if m == nil {
		return
	}
	m.StoreObjectsTotal.WithLabelValues(objectType).Set(float64(count))
}
