package anomaly

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/baseline"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
)

// maxLearnedOrigins caps how many network ranges and agent fingerprints a
// baseline carries, keeping membership checks cheap and the stored row
// bounded.
const maxLearnedOrigins = 10

// ErrInsufficientHistory signals that the client has not produced enough
// successful traffic to learn from. Refresh sweeps skip these clients and
// try again on the next pass.
var ErrInsufficientHistory = errors.NewBusinessError("INSUFFICIENT_HISTORY",
	"not enough ledger history to build a behavioral baseline")

// Builder learns behavioral baselines from the access ledger. Each rebuild
// produces a new immutable version; the scorer keeps reading the previous
// version until the new one lands, so a refresh never perturbs in-flight
// evaluations.
type Builder struct {
	ledger    access.Repository
	baselines baseline.Repository
	cfg       config.BaselineConfig
	logger    *zap.Logger
}

// NewBuilder creates the baseline builder.
func NewBuilder(ledger access.Repository, baselines baseline.Repository, cfg config.BaselineConfig, logger *zap.Logger) (*Builder, error) {
	if ledger == nil || baselines == nil {
		return nil, errors.NewInternalError("baseline builder requires ledger and baseline repositories")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LearningPeriodDays <= 0 {
		cfg.LearningPeriodDays = baseline.DefaultLearningPeriodDays
	}
	return &Builder{ledger: ledger, baselines: baselines, cfg: cfg, logger: logger}, nil
}

// Rebuild learns a fresh baseline version for one client from its ledger
// history over the learning period and persists it. Returns
// ErrInsufficientHistory when the client has fewer successful entries than
// the configured sample floor.
func (b *Builder) Rebuild(ctx context.Context, tenantID, clientID uuid.UUID, now time.Time) (*baseline.Baseline, error) {
	since := now.Add(-time.Duration(b.cfg.LearningPeriodDays) * 24 * time.Hour)

	entries, err := b.ledger.ListByClient(ctx, tenantID, clientID, since, now)
	if err != nil {
		return nil, err
	}

	succeeded := entries[:0:0]
	for _, e := range entries {
		if e.Succeeded {
			succeeded = append(succeeded, e)
		}
	}
	if len(succeeded) < b.cfg.MinSamples {
		return nil, ErrInsufficientHistory
	}

	next, err := b.nextVersion(ctx, tenantID, clientID, now)
	if err != nil {
		return nil, err
	}

	b.fill(next, succeeded, since, now)

	if err := b.baselines.Save(ctx, next); err != nil {
		return nil, err
	}

	b.logger.Info("baseline rebuilt",
		zap.String("tenant_id", tenantID.String()),
		zap.String("client_id", clientID.String()),
		zap.Int("version", next.Version),
		zap.Int("samples", next.SampleCount),
		zap.Float64("confidence", next.Confidence.Value()))

	return next, nil
}

// nextVersion loads the current baseline and returns its empty successor,
// or a fresh version 1 when the client has none yet.
func (b *Builder) nextVersion(ctx context.Context, tenantID, clientID uuid.UUID, now time.Time) (*baseline.Baseline, error) {
	current, err := b.baselines.Latest(ctx, tenantID, clientID)
	switch {
	case err == nil:
		return current.NextVersion(now), nil
	case errors.IsType(err, errors.ErrorTypeNotFound):
		return baseline.New(tenantID, clientID, b.cfg.LearningPeriodDays, now)
	default:
		return nil, err
	}
}

// fill computes the statistical profile from successful entries, oldest
// first.
func (b *Builder) fill(base *baseline.Baseline, entries []*access.Entry, since, now time.Time) {
	base.SampleCount = len(entries)

	sizes := make([]float64, len(entries))
	for i, e := range entries {
		sizes[i] = float64(e.ByteSize.Bytes())
	}
	base.MeanRequestSize, base.RequestSizeStdDev = meanStdDev(sizes)

	hours := now.Sub(since).Hours()
	if hours > 0 {
		base.MeanRequestsPerHour = float64(len(entries)) / hours
	}

	base.PeakHours = peakHours(entries)
	base.CategoryDistribution = categoryDistribution(entries)
	base.MeanSessionSeconds, base.SessionStdDevSeconds = sessionStats(entries)
	base.NetworkRanges = topValues(entries, func(e *access.Entry) string { return e.SourceNetwork })
	base.AgentFingerprints = topValues(entries, func(e *access.Entry) string { return e.AgentFingerprint })

	// Confidence ramps linearly with sample depth and saturates at twice
	// the minimum sample floor.
	floor := b.cfg.MinSamples
	if floor <= 0 {
		floor = 1
	}
	base.Confidence = values.SaturatingConfidence(float64(len(entries)) / float64(2*floor))
}

// peakHours returns the sorted hours-of-day whose request counts are at or
// above the average across active hours.
func peakHours(entries []*access.Entry) []int {
	var counts [24]int
	active := 0
	for _, e := range entries {
		h := e.Timestamp.UTC().Hour()
		if counts[h] == 0 {
			active++
		}
		counts[h]++
	}
	if active == 0 {
		return nil
	}

	avg := float64(len(entries)) / float64(active)
	peaks := make([]int, 0, active)
	for h, n := range counts {
		if n > 0 && float64(n) >= avg {
			peaks = append(peaks, h)
		}
	}
	return peaks
}

func categoryDistribution(entries []*access.Entry) map[access.DataCategory]float64 {
	dist := make(map[access.DataCategory]float64, len(access.AllCategories()))
	for _, e := range entries {
		dist[e.Category]++
	}
	total := float64(len(entries))
	for cat, n := range dist {
		dist[cat] = n / total
	}
	return dist
}

// sessionStats derives session durations from the span between each
// session's first and last entry. Single-entry sessions carry no duration
// signal and are skipped.
func sessionStats(entries []*access.Entry) (mean, stdDev float64) {
	type span struct{ first, last time.Time }
	sessions := map[string]*span{}
	for _, e := range entries {
		if e.SessionID == "" {
			continue
		}
		s, ok := sessions[e.SessionID]
		if !ok {
			sessions[e.SessionID] = &span{first: e.Timestamp, last: e.Timestamp}
			continue
		}
		if e.Timestamp.Before(s.first) {
			s.first = e.Timestamp
		}
		if e.Timestamp.After(s.last) {
			s.last = e.Timestamp
		}
	}

	durations := make([]float64, 0, len(sessions))
	for _, s := range sessions {
		if d := s.last.Sub(s.first).Seconds(); d > 0 {
			durations = append(durations, d)
		}
	}
	return meanStdDev(durations)
}

// topValues returns the most frequent non-empty values of the extractor,
// capped at maxLearnedOrigins, most frequent first.
func topValues(entries []*access.Entry, get func(*access.Entry) string) []string {
	counts := map[string]int{}
	for _, e := range entries {
		if v := get(e); v != "" {
			counts[v]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	vals := make([]string, 0, len(counts))
	for v := range counts {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool {
		if counts[vals[i]] != counts[vals[j]] {
			return counts[vals[i]] > counts[vals[j]]
		}
		return vals[i] < vals[j]
	})
	if len(vals) > maxLearnedOrigins {
		vals = vals[:maxLearnedOrigins]
	}
	return vals
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(xs []float64) (mean, stdDev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))

	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}
