package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds all domain metrics for the gateway.
type Registry struct {
	meter metric.Meter

	// Decision metrics
	EvaluationDuration   metric.Float64Histogram
	EvaluationsPerSecond metric.Float64ObservableGauge
	AllowCounter         metric.Int64Counter
	DenyCounter          metric.Int64Counter

	// Pattern and anomaly detection metrics
	DetectionPassDuration    metric.Float64Histogram
	DetectorFiringCounter    metric.Int64Counter
	SuspiciousVerdictCounter metric.Int64Counter
	AnomalyCompositeScore    metric.Float64Histogram
	AnomalyCounter           metric.Int64Counter

	// Reputation metrics
	ReputationScore        metric.Float64Histogram
	ViolationCounter       metric.Int64Counter
	SessionsRevokedCounter metric.Int64Counter
	TrackedClients         metric.Int64ObservableGauge

	// System metrics
	DatabaseConnectionPool metric.Int64ObservableGauge
	CacheHitRate           metric.Float64ObservableGauge
	VolumeBytesCounter     metric.Int64Counter

	// State for observable metrics
	mu              sync.RWMutex
	trackedClients  int64
	dbPoolSize      int64
	cacheHits       int64
	cacheLookups    int64
	evaluationsDone int64
	lastEvalCount   int64
	lastEvalTime    time.Time
}

// NewRegistry creates a metrics registry bound to the given meter name.
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{
		meter:        otel.Meter(meterName),
		lastEvalTime: time.Now(),
	}

	if err := r.initDecisionMetrics(); err != nil {
		return nil, err
	}

	if err := r.initDetectionMetrics(); err != nil {
		return nil, err
	}

	if err := r.initReputationMetrics(); err != nil {
		return nil, err
	}

	if err := r.initSystemMetrics(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) initDecisionMetrics() error {
	var err error

	r.EvaluationDuration, err = r.meter.Float64Histogram(
		"ldg.decision.evaluation_duration",
		metric.WithDescription("Access evaluation latency in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return err
	}

	r.EvaluationsPerSecond, err = r.meter.Float64ObservableGauge(
		"ldg.decision.throughput_per_second",
		metric.WithDescription("Current access evaluation throughput per second"),
		metric.WithFloat64Callback(func(ctx context.Context, o metric.Float64Observer) error {
			r.mu.Lock()
			defer r.mu.Unlock()

			now := time.Now()
			elapsed := now.Sub(r.lastEvalTime).Seconds()
			if elapsed > 0 {
				rate := float64(r.evaluationsDone-r.lastEvalCount) / elapsed
				o.Observe(rate)
				r.lastEvalCount = r.evaluationsDone
				r.lastEvalTime = now
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.AllowCounter, err = r.meter.Int64Counter(
		"ldg.decision.allow_total",
		metric.WithDescription("Total access requests allowed"),
	)
	if err != nil {
		return err
	}

	r.DenyCounter, err = r.meter.Int64Counter(
		"ldg.decision.deny_total",
		metric.WithDescription("Total access requests denied"),
	)

	return err
}

func (r *Registry) initDetectionMetrics() error {
	var err error

	r.DetectionPassDuration, err = r.meter.Float64Histogram(
		"ldg.detection.pass_duration",
		metric.WithDescription("Pattern detection pass duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		return err
	}

	r.DetectorFiringCounter, err = r.meter.Int64Counter(
		"ldg.detection.detector_firing_total",
		metric.WithDescription("Total individual detector firings"),
	)
	if err != nil {
		return err
	}

	r.SuspiciousVerdictCounter, err = r.meter.Int64Counter(
		"ldg.detection.suspicious_verdict_total",
		metric.WithDescription("Total detection passes that flagged a client as suspicious"),
	)
	if err != nil {
		return err
	}

	r.AnomalyCompositeScore, err = r.meter.Float64Histogram(
		"ldg.anomaly.composite_score",
		metric.WithDescription("Distribution of behavioral anomaly composite scores"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 0.75, 0.8, 0.9, 0.95, 1),
	)
	if err != nil {
		return err
	}

	r.AnomalyCounter, err = r.meter.Int64Counter(
		"ldg.anomaly.detected_total",
		metric.WithDescription("Total behavioral anomalies crossing the reporting threshold"),
	)

	return err
}

func (r *Registry) initReputationMetrics() error {
	var err error

	r.ReputationScore, err = r.meter.Float64Histogram(
		"ldg.reputation.score",
		metric.WithDescription("Distribution of reputation scores after updates"),
		metric.WithExplicitBucketBoundaries(10, 20, 30, 45, 60, 70, 80, 90, 100),
	)
	if err != nil {
		return err
	}

	r.ViolationCounter, err = r.meter.Int64Counter(
		"ldg.reputation.violation_total",
		metric.WithDescription("Total violations recorded"),
	)
	if err != nil {
		return err
	}

	r.SessionsRevokedCounter, err = r.meter.Int64Counter(
		"ldg.reputation.sessions_revoked_total",
		metric.WithDescription("Total sessions revoked by containment"),
	)
	if err != nil {
		return err
	}

	r.TrackedClients, err = r.meter.Int64ObservableGauge(
		"ldg.reputation.tracked_clients",
		metric.WithDescription("Clients with reputation state under management"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.trackedClients)
			return nil
		}),
	)

	return err
}

func (r *Registry) initSystemMetrics() error {
	var err error

	r.DatabaseConnectionPool, err = r.meter.Int64ObservableGauge(
		"ldg.system.db_connection_pool_size",
		metric.WithDescription("Current database connection pool size"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.dbPoolSize)
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.CacheHitRate, err = r.meter.Float64ObservableGauge(
		"ldg.system.cache_hit_rate",
		metric.WithDescription("Reputation cache hit rate since start"),
		metric.WithFloat64Callback(func(ctx context.Context, o metric.Float64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			if r.cacheLookups > 0 {
				o.Observe(float64(r.cacheHits) / float64(r.cacheLookups))
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.VolumeBytesCounter, err = r.meter.Int64Counter(
		"ldg.system.volume_bytes_total",
		metric.WithDescription("Total bytes of learner data served"),
		metric.WithUnit("By"),
	)

	return err
}

// Helper methods for updating observable metric values

// SetTrackedClients sets the tracked client count.
func (r *Registry) SetTrackedClients(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackedClients = n
}

// SetDBPoolSize sets the database connection pool size.
func (r *Registry) SetDBPoolSize(size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dbPoolSize = size
}

// RecordCacheLookup feeds the cache hit rate gauge.
func (r *Registry) RecordCacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheLookups++
	if hit {
		r.cacheHits++
	}
}

// Helper methods for recording metrics with common attribute patterns

// RecordEvaluation records one completed access evaluation.
func (r *Registry) RecordEvaluation(ctx context.Context, durationMS float64, category string, allowed bool, reason string) {
	attrs := []attribute.KeyValue{
		attribute.String("category", category),
		attribute.String("reason", reason),
	}

	r.EvaluationDuration.Record(ctx, durationMS, metric.WithAttributes(attrs...))

	if allowed {
		r.AllowCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		r.DenyCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	r.mu.Lock()
	r.evaluationsDone++
	r.mu.Unlock()
}

// RecordDetectionPass records one pattern detection pass over a client's
// recent history.
func (r *Registry) RecordDetectionPass(ctx context.Context, durationMS float64, firings []string, suspicious bool) {
	r.DetectionPassDuration.Record(ctx, durationMS,
		metric.WithAttributes(attribute.Bool("suspicious", suspicious)))

	for _, detector := range firings {
		r.DetectorFiringCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("detector", detector)))
	}

	if suspicious {
		r.SuspiciousVerdictCounter.Add(ctx, 1)
	}
}

// RecordAnomaly records a behavioral anomaly scoring outcome.
func (r *Registry) RecordAnomaly(ctx context.Context, composite float64, severity string, investigate bool) {
	r.AnomalyCompositeScore.Record(ctx, composite,
		metric.WithAttributes(attribute.String("severity", severity)))

	if investigate {
		r.AnomalyCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("severity", severity)))
	}
}

// RecordViolation records one recorded violation.
func (r *Registry) RecordViolation(ctx context.Context, violationType, severity string) {
	r.ViolationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", violationType),
		attribute.String("severity", severity),
	))
}

// RecordReputation records a reputation score after an update.
func (r *Registry) RecordReputation(ctx context.Context, score float64, tier string) {
	r.ReputationScore.Record(ctx, score,
		metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordSessionsRevoked records a containment sweep's revocation count.
func (r *Registry) RecordSessionsRevoked(ctx context.Context, count int64) {
	if count > 0 {
		r.SessionsRevokedCounter.Add(ctx, count)
	}
}

// RecordVolume records bytes served for a category.
func (r *Registry) RecordVolume(ctx context.Context, category string, bytes int64) {
	r.VolumeBytesCounter.Add(ctx, bytes,
		metric.WithAttributes(attribute.String("category", category)))
}
