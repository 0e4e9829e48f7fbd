package anomaly

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
	"github.com/learnershield/learner-data-gateway/internal/testutil/fixtures"
)

func testDetectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		LookbackHours:            24,
		MinDetectorConfidence:    0.4,
		MeanConfidenceFloor:      0.6,
		DenyConfidence:           0.8,
		AnomalyHighThreshold:     0.8,
		AnomalyCriticalThreshold: 0.95,
		BusinessHoursStart:       8,
		BusinessHoursEnd:         18,
	}
}

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	return NewScorer(testDetectionConfig(), zaptest.NewLogger(t))
}

func sampleAt(now time.Time) Sample {
	return Sample{
		Request: access.Request{
			TenantID:       uuid.New(),
			ClientID:       uuid.New(),
			ActorID:        uuid.New(),
			Category:       access.CategoryProfile,
			EstimatedBytes: 50 * 1024,
			Now:            now,
		},
	}
}

func TestComposite(t *testing.T) {
	t.Run("empty scores compose to zero", func(t *testing.T) {
		assert.Zero(t, Composite(nil))
		assert.Zero(t, Composite(map[string]float64{"volume": 0, "session": 0}))
	})

	t.Run("uniform scores compose to themselves", func(t *testing.T) {
		scores := map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5}
		assert.InDelta(t, 0.5, Composite(scores), 1e-9)
	})

	t.Run("one extreme dimension dominates several mild ones", func(t *testing.T) {
		scores := map[string]float64{
			"volume": 1.0, "session": 0.1, "category": 0.1, "temporal": 0.1,
			"velocity": 0.1, "geographic": 0.1, "agent": 0.1,
		}
		composite := Composite(scores)
		assert.Greater(t, composite, 0.9, "squared weighting must not let mild scores dilute an extreme one")
	})

	t.Run("invariant to dimension naming and order", func(t *testing.T) {
		a := map[string]float64{"x": 0.9, "y": 0.2, "z": 0.6}
		b := map[string]float64{"p": 0.6, "q": 0.9, "r": 0.2}
		assert.InDelta(t, Composite(a), Composite(b), 1e-12)
	})
}

func TestScorer_Score(t *testing.T) {
	// Monday 10:00, inside the fixture baseline's peak hours.
	peakNow := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("nil baseline scores nothing", func(t *testing.T) {
		scorer := newTestScorer(t)

		assessment := scorer.Score(sampleAt(peakNow), nil)

		assert.Empty(t, assessment.Scores)
		assert.Zero(t, assessment.Composite)
		assert.False(t, assessment.Anomalous)
	})

	t.Run("in-profile request scores low", func(t *testing.T) {
		scorer := newTestScorer(t)
		base := fixtures.NewBaselineBuilder().Build(t)

		sample := sampleAt(peakNow)
		sample.Request.SourceNetwork = "10.42.0.0/16"
		sample.Request.AgentFingerprint = "sdk-go-2.4"
		sample.RequestsLastHour = 10

		assessment := scorer.Score(sample, base)

		assert.Zero(t, assessment.Scores[DimVolume])
		assert.Zero(t, assessment.Scores[DimTemporal])
		assert.Zero(t, assessment.Scores[DimVelocity])
		assert.Zero(t, assessment.Scores[DimGeographic])
		assert.Zero(t, assessment.Scores[DimAgent])
		assert.False(t, assessment.Anomalous)
		assert.False(t, assessment.Critical)
	})

	t.Run("hostile request crosses the critical threshold", func(t *testing.T) {
		scorer := newTestScorer(t)
		base := fixtures.NewBaselineBuilder().Build(t)

		sample := Sample{
			Request: access.Request{
				TenantID:         uuid.New(),
				ClientID:         uuid.New(),
				ActorID:          uuid.New(),
				Category:         access.CategoryRealTime,
				EstimatedBytes:   500 * 1024,
				SourceNetwork:    "203.0.113.0/24",
				AgentFingerprint: "curl/8.4",
				Now:              time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC),
			},
			RequestsLastHour: 200,
		}

		assessment := scorer.Score(sample, base)

		assert.Equal(t, 1.0, assessment.Scores[DimVolume])
		assert.Equal(t, 1.0, assessment.Scores[DimTemporal])
		assert.Equal(t, 1.0, assessment.Scores[DimCategory])
		assert.Equal(t, 1.0, assessment.Scores[DimVelocity])
		assert.Equal(t, 0.85, assessment.Scores[DimGeographic])
		assert.Equal(t, 0.8, assessment.Scores[DimAgent])

		assert.True(t, assessment.Anomalous)
		assert.True(t, assessment.Critical)
		assert.Equal(t, violation.SeverityCritical, assessment.Severity)
	})

	t.Run("volume deviation scales to three sigmas", func(t *testing.T) {
		scorer := newTestScorer(t)
		base := fixtures.NewBaselineBuilder().
			WithRequestSize(100*1024, 10*1024).
			WithPeakHours(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23).
			WithDistribution(map[access.DataCategory]float64{access.CategoryProfile: 1}).
			WithRequestRate(1000).
			Build(t)

		sample := sampleAt(peakNow)
		sample.Request.SourceNetwork = "10.42.0.0/16"
		sample.Request.AgentFingerprint = "sdk-go-2.4"

		sample.Request.EstimatedBytes = 115 * 1024 // 1.5 sigmas out
		halfway := scorer.Score(sample, base)
		assert.InDelta(t, 0.5, halfway.Scores[DimVolume], 1e-9)
		assert.InDelta(t, 0.5, halfway.Composite, 1e-9)

		sample.Request.EstimatedBytes = 160 * 1024 // six sigmas, capped
		capped := scorer.Score(sample, base)
		assert.Equal(t, 1.0, capped.Scores[DimVolume])
	})

	t.Run("session duration deviation", func(t *testing.T) {
		scorer := newTestScorer(t)
		base := fixtures.NewBaselineBuilder().Build(t)

		sample := sampleAt(peakNow)
		sample.SessionDuration = 30 * time.Minute
		assert.Zero(t, scorer.Score(sample, base).Scores[DimSession])

		sample.SessionDuration = time.Hour // three sigmas past the 1800s mean
		assert.Equal(t, 1.0, scorer.Score(sample, base).Scores[DimSession])
	})

	t.Run("unlearned dimensions score neutral, not clean", func(t *testing.T) {
		scorer := newTestScorer(t)
		base := fixtures.NewBaselineBuilder().
			WithPeakHours().
			WithDistribution(nil).
			WithNetworks().
			WithAgents().
			WithSessions(0, 0).
			Build(t)

		sample := sampleAt(peakNow)
		sample.Request.SourceNetwork = "203.0.113.0/24"
		sample.Request.AgentFingerprint = "curl/8.4"
		sample.SessionDuration = 10 * time.Minute

		assessment := scorer.Score(sample, base)

		assert.Equal(t, neutralScore, assessment.Scores[DimTemporal])
		assert.Equal(t, neutralScore, assessment.Scores[DimCategory])
		assert.Equal(t, neutralScore, assessment.Scores[DimGeographic])
		assert.Equal(t, neutralScore, assessment.Scores[DimAgent])
		assert.Equal(t, neutralScore, assessment.Scores[DimSession])
	})

	t.Run("thin baseline confidence discounts the composite", func(t *testing.T) {
		scorer := newTestScorer(t)
		settled := fixtures.NewBaselineBuilder().Build(t)
		thin := fixtures.NewBaselineBuilder().WithConfidence(0.5).Build(t)

		sample := Sample{
			Request: access.Request{
				TenantID:         uuid.New(),
				ClientID:         uuid.New(),
				ActorID:          uuid.New(),
				Category:         access.CategoryRealTime,
				EstimatedBytes:   500 * 1024,
				SourceNetwork:    "203.0.113.0/24",
				AgentFingerprint: "curl/8.4",
				Now:              time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC),
			},
			RequestsLastHour: 200,
		}

		full := scorer.Score(sample, settled)
		discounted := scorer.Score(sample, thin)

		require.True(t, full.Critical)
		assert.InDelta(t, full.Composite/2, discounted.Composite, 1e-9)
		assert.False(t, discounted.Anomalous, "two days of learning cannot brand a client critical")
	})
}
