package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the maintenance daemon. The decision-path metrics
// live in internal/metrics on the otel registry; these cover the daemon's
// own sweeps and the audit sink it hosts.

var (
	baselinesRebuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ldg",
			Subsystem: "baseline",
			Name:      "rebuilt_total",
			Help:      "Baseline versions written by the refresh sweep",
		},
		[]string{"outcome"},
	)

	baselineSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ldg",
			Subsystem: "baseline",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one full baseline refresh sweep",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	clientsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ldg",
			Subsystem: "reputation",
			Name:      "recovered_total",
			Help:      "Reputation records nudged by the daily recovery sweep",
		},
	)

	sweepErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ldg",
			Subsystem: "worker",
			Name:      "errors_total",
			Help:      "Errors encountered by maintenance sweeps",
		},
		[]string{"worker"},
	)

	auditQueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ldg",
			Subsystem: "audit",
			Name:      "queue_pending",
			Help:      "Audit events buffered and awaiting append",
		},
	)

	auditEventsDropped = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ldg",
			Subsystem: "audit",
			Name:      "events_dropped_total",
			Help:      "Audit events lost to backpressure or append failure",
		},
	)

	dbPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pgxpool",
			Name:      "connections",
			Help:      "Current number of connections in the pool",
		},
		[]string{"state"},
	)
)

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordBaselineOutcome counts one client's refresh outcome: rebuilt,
// skipped, or failed.
func RecordBaselineOutcome(outcome string) {
	baselinesRebuilt.WithLabelValues(outcome).Inc()
}

// RecordBaselineSweep records one completed sweep.
func RecordBaselineSweep(d time.Duration) {
	baselineSweepDuration.Observe(d.Seconds())
}

// RecordRecovered counts reputation records recovered in one sweep.
func RecordRecovered(n int) {
	clientsRecovered.Add(float64(n))
}

// RecordSweepError counts one sweep-level failure.
func RecordSweepError(worker string) {
	sweepErrors.WithLabelValues(worker).Inc()
}

// UpdateAuditQueue publishes the audit sink's counters.
func UpdateAuditQueue(pending int, dropped int64) {
	auditQueuePending.Set(float64(pending))
	auditEventsDropped.Set(float64(dropped))
}

// UpdateDBPool publishes connection pool occupancy.
func UpdateDBPool(acquired, idle, total int32) {
	dbPoolConnections.WithLabelValues("acquired").Set(float64(acquired))
	dbPoolConnections.WithLabelValues("idle").Set(float64(idle))
	dbPoolConnections.WithLabelValues("total").Set(float64(total))
}
