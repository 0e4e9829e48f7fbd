package anomaly

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/baseline"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
)

// Dimension names, used as score-map keys on anomaly records.
const (
	DimVolume     = "volume"
	DimSession    = "session"
	DimCategory   = "data_category"
	DimTemporal   = "temporal"
	DimVelocity   = "velocity"
	DimGeographic = "geographic"
	DimAgent      = "user_agent"
)

// neutralScore is used when a dimension has nothing learned to compare
// against. Missing risk data is not low risk; it is half-suspicion.
const neutralScore = 0.5

// sigmaCap normalizes z-scores: three standard deviations out maps to a
// full-scale score of 1.
const sigmaCap = 3.0

// Sample is one request as seen by the scorer, with the live context the
// baseline cannot know.
type Sample struct {
	Request access.Request

	// RequestsLastHour is the client's committed request count over the
	// trailing hour, for velocity scoring.
	RequestsLastHour int

	// SessionDuration is how long the request's session has been alive;
	// zero when the request carries no session or the session is new.
	SessionDuration time.Duration
}

// Assessment is the scored outcome: seven independent dimension scores
// and their composite.
type Assessment struct {
	Scores    map[string]float64 `json:"scores"`
	Composite float64            `json:"composite"`
	Severity  violation.Severity `json:"severity"`
	Anomalous bool               `json:"anomalous"`
	Critical  bool               `json:"critical"`
}

// Scorer computes per-dimension deviation scores against a client's
// behavioral baseline and combines them into a composite. The combiner
// weights each score by its own square, so a single extreme dimension
// dominates several mild ones, and the result is invariant to dimension
// ordering.
type Scorer struct {
	cfg    config.DetectionConfig
	logger *zap.Logger
}

// NewScorer creates the anomaly scorer.
func NewScorer(cfg config.DetectionConfig, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{cfg: cfg, logger: logger}
}

// Score evaluates one sample against the baseline. A nil baseline (new
// client, still learning) scores zero across the board; the rate limits
// and pattern detectors carry the load until a baseline exists.
func (s *Scorer) Score(sample Sample, base *baseline.Baseline) Assessment {
	if base == nil {
		return Assessment{Scores: map[string]float64{}}
	}

	scores := map[string]float64{
		DimVolume:     s.volumeScore(sample, base),
		DimSession:    s.sessionScore(sample, base),
		DimCategory:   s.categoryScore(sample, base),
		DimTemporal:   s.temporalScore(sample, base),
		DimVelocity:   s.velocityScore(sample, base),
		DimGeographic: s.geographicScore(sample, base),
		DimAgent:      s.agentScore(sample, base),
	}

	// A thin baseline softens every verdict: scores are discounted by
	// its confidence so a client two days into learning cannot be
	// branded critical on noise.
	composite := Composite(scores) * base.Confidence.Value()

	assessment := Assessment{
		Scores:    scores,
		Composite: composite,
		Anomalous: composite > s.cfg.AnomalyHighThreshold,
		Critical:  composite > s.cfg.AnomalyCriticalThreshold,
	}
	switch {
	case assessment.Critical:
		assessment.Severity = violation.SeverityCritical
	case assessment.Anomalous:
		assessment.Severity = violation.SeverityHigh
	}

	return assessment
}

// Composite combines dimension scores with their squares as weights:
// sum(s^3)/sum(s^2). Commutative, and dominated by the largest score.
func Composite(scores map[string]float64) float64 {
	var num, den float64
	for _, score := range scores {
		num += score * score * score
		den += score * score
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// volumeScore is the 3-sigma-normalized z-score of the request size.
func (s *Scorer) volumeScore(sample Sample, base *baseline.Baseline) float64 {
	size := float64(sample.Request.EstimatedBytes)
	if base.RequestSizeStdDev <= 0 {
		if base.MeanRequestSize <= 0 {
			return neutralScore
		}
		// Degenerate baseline: every learned request was identical.
		if size == base.MeanRequestSize {
			return 0
		}
		return math.Min(1, math.Abs(size-base.MeanRequestSize)/base.MeanRequestSize)
	}

	z := math.Abs(size-base.MeanRequestSize) / base.RequestSizeStdDev
	return math.Min(1, z/sigmaCap)
}

// sessionScore applies the same z-score approach to session duration.
func (s *Scorer) sessionScore(sample Sample, base *baseline.Baseline) float64 {
	if sample.SessionDuration <= 0 {
		return 0
	}
	if !base.HasSessionStats() {
		return neutralScore
	}

	seconds := sample.SessionDuration.Seconds()
	if base.SessionStdDevSeconds <= 0 {
		if seconds == base.MeanSessionSeconds {
			return 0
		}
		return math.Min(1, math.Abs(seconds-base.MeanSessionSeconds)/base.MeanSessionSeconds)
	}

	z := math.Abs(seconds-base.MeanSessionSeconds) / base.SessionStdDevSeconds
	return math.Min(1, z/sigmaCap)
}

// categoryScore is high for categories the client rarely or never
// touches.
func (s *Scorer) categoryScore(sample Sample, base *baseline.Baseline) float64 {
	if len(base.CategoryDistribution) == 0 {
		return neutralScore
	}
	return 1 - base.CategoryProbability(sample.Request.Category)
}

// temporalScore measures distance from the client's learned active
// hours.
func (s *Scorer) temporalScore(sample Sample, base *baseline.Baseline) float64 {
	if len(base.PeakHours) == 0 {
		return neutralScore
	}

	hour := sample.Request.Now.UTC().Hour()
	if base.IsPeakHour(hour) {
		return 0
	}

	// Score by circular distance to the nearest learned hour; half a
	// day away is full scale.
	nearest := 12.0
	for _, peak := range base.PeakHours {
		d := math.Abs(float64(hour - peak))
		if d > 12 {
			d = 24 - d
		}
		if d < nearest {
			nearest = d
		}
	}
	return math.Min(1, nearest/6.0)
}

// velocityScore compares the live request cadence to the learned hourly
// mean.
func (s *Scorer) velocityScore(sample Sample, base *baseline.Baseline) float64 {
	observed := float64(sample.RequestsLastHour + 1)
	if base.MeanRequestsPerHour <= 0 {
		if observed > 1 {
			return neutralScore
		}
		return 0
	}

	ratio := observed / base.MeanRequestsPerHour
	if ratio <= 1 {
		return 0
	}
	// 4x the learned rate is full scale.
	return math.Min(1, (ratio-1)/3)
}

// geographicScore checks network-range membership. No geo database, no
// lookup: the signal is "is this one of the networks we learned".
func (s *Scorer) geographicScore(sample Sample, base *baseline.Baseline) float64 {
	if sample.Request.SourceNetwork == "" || len(base.NetworkRanges) == 0 {
		return neutralScore
	}
	if base.KnowsNetwork(sample.Request.SourceNetwork) {
		return 0
	}
	return 0.85
}

// agentScore checks agent-fingerprint membership.
func (s *Scorer) agentScore(sample Sample, base *baseline.Baseline) float64 {
	if sample.Request.AgentFingerprint == "" || len(base.AgentFingerprints) == 0 {
		return neutralScore
	}
	if base.KnowsAgent(sample.Request.AgentFingerprint) {
		return 0
	}
	return 0.8
}
