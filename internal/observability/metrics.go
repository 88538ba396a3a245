// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Enrichment metrics
	EnrichmentsTotal   *prometheus.CounterVec
	EnrichmentDuration prometheus.Histogram

	// Upstream metrics
	UpstreamCallLatency *prometheus.HistogramVec
	UpstreamCallErrors  *prometheus.CounterVec
	BreakerState        *prometheus.GaugeVec
	IdentityCacheTotal  *prometheus.CounterVec

	// Leaderboard metrics
	LeaderboardSize     prometheus.Gauge
	LeaderboardMutation *prometheus.CounterVec

	// Reconciliation metrics
	ReconcileRunsTotal *prometheus.CounterVec
	ReconcileDuration  prometheus.Histogram
	ReconcileChanges   *prometheus.CounterVec
	LedgerEvents       prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulReconcile prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "castboard"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EnrichmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "total",
			Help:      "Total number of enrichment attempts by outcome",
		}, []string{"outcome"}),
		EnrichmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "duration_seconds",
			Help:      "End-to-end enrichment latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		UpstreamCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_latency_seconds",
			Help:      "External API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		UpstreamCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_errors_total",
			Help:      "Total number of failed external API calls",
		}, []string{"service", "reason"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per service (0=closed, 1=half-open, 2=open)",
		}, []string{"service"}),
		IdentityCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "cache_lookups_total",
			Help:      "Identity cache lookups by result",
		}, []string{"result"}),

		LeaderboardSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "participants",
			Help:      "Current number of participants on the leaderboard",
		}),
		LeaderboardMutation: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "mutations_total",
			Help:      "Leaderboard mutations by operation",
		}, []string{"op"}),

		ReconcileRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of reconciliation passes by status",
		}, []string{"status"}),
		ReconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Reconciliation pass duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		ReconcileChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "changes_total",
			Help:      "Participants changed by reconciliation, by kind",
		}, []string{"kind"}),
		LedgerEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_total",
			Help:      "Ledger change notifications received",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulReconcile: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_reconcile_timestamp",
			Help:      "Unix timestamp of last successful reconciliation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordEnrichment records an enrichment outcome and its latency.
func RecordEnrichment(outcome string, seconds float64) {
	DefaultMetrics.EnrichmentsTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.EnrichmentDuration.Observe(seconds)
}

// RecordUpstreamCall records an external API call.
// reason is empty on success.
func RecordUpstreamCall(service string, seconds float64, reason string) {
	DefaultMetrics.UpstreamCallLatency.WithLabelValues(service).Observe(seconds)
	if reason != "" {
		DefaultMetrics.UpstreamCallErrors.WithLabelValues(service, reason).Inc()
	}
}

// SetBreakerState records the circuit breaker state for a service.
func SetBreakerState(service string, state int) {
	DefaultMetrics.BreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordIdentityCache records an identity cache lookup (hit, miss, error).
func RecordIdentityCache(result string) {
	DefaultMetrics.IdentityCacheTotal.WithLabelValues(result).Inc()
}

// RecordLeaderboardMutation records a store mutation and the resulting size.
func RecordLeaderboardMutation(op string, size int) {
	DefaultMetrics.LeaderboardMutation.WithLabelValues(op).Inc()
	DefaultMetrics.LeaderboardSize.Set(float64(size))
}

// RecordReconcile records a reconciliation pass.
func RecordReconcile(status string, durationSeconds float64, inserted, updated, removed int) {
	DefaultMetrics.ReconcileRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.ReconcileDuration.Observe(durationSeconds)
	if status != "success" {
		return
	}
	DefaultMetrics.ReconcileChanges.WithLabelValues("inserted").Add(float64(inserted))
	DefaultMetrics.ReconcileChanges.WithLabelValues("updated").Add(float64(updated))
	DefaultMetrics.ReconcileChanges.WithLabelValues("removed").Add(float64(removed))
}

// MarkReconcileSuccess updates the last successful reconcile gauge.
func MarkReconcileSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulReconcile.Set(float64(unixSeconds))
}

// RecordLedgerEvent increments the ledger notification counter.
func RecordLedgerEvent() {
	DefaultMetrics.LedgerEvents.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
