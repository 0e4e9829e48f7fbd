package reputation

import (
	"time"

	"github.com/google/uuid"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
)

const (
	// maxHistoryEvents caps the per-client history log.
	maxHistoryEvents = 100

	// successReward is the score nudge for one successful request.
	successReward = 0.1

	// maxPenaltyMultiplier caps how far consecutive violations can
	// amplify a base penalty.
	maxPenaltyMultiplier = 5.0

	// signalSmoothing is the EMA weight given to the newest behavioral
	// signal observation.
	signalSmoothing = 0.3
)

// HistoryEvent is one entry in a client's reputation history log.
type HistoryEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	Event     string    `json:"event"`
}

// Client is the mutable per-client reputation record. The score starts at
// 100 and lives in [0, 100] forever; every request mutates the record, and
// the risk tier is always derived, never assigned.
type Client struct {
	ClientID                 uuid.UUID      `json:"client_id"`
	TenantID                 uuid.UUID      `json:"tenant_id"`
	Score                    values.Score   `json:"reputation_score"`
	TotalRequests            int64          `json:"total_requests"`
	SuccessfulRequests       int64          `json:"successful_requests"`
	ViolationCount           int            `json:"violation_count"`
	ConsecutiveViolations    int            `json:"consecutive_violations"`
	MaxConsecutiveViolations int            `json:"max_consecutive_violations"`
	SuspiciousPatternCount   int            `json:"suspicious_pattern_count"`
	ComplianceViolationCount int            `json:"compliance_violation_count"`
	BehavioralAnomalyScore   float64        `json:"behavioral_anomaly_score"`
	AutomationProbability    float64        `json:"automation_probability"`
	History                  []HistoryEvent `json:"history"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
}

// NewClient creates a fresh reputation record for a first-seen client.
func NewClient(tenantID, clientID uuid.UUID, now time.Time) (*Client, error) {
	if tenantID == uuid.Nil || clientID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_IDENTITY",
			"reputation record requires tenant and client identifiers")
	}
	return &Client{
		ClientID:  clientID,
		TenantID:  tenantID,
		Score:     values.PerfectScore(),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// RecordSuccess applies one successful request: the violation streak resets
// and the score recovers slightly, saturating at 100.
func (c *Client) RecordSuccess(now time.Time) {
	c.TotalRequests++
	c.SuccessfulRequests++
	c.ConsecutiveViolations = 0
	c.Score = c.Score.Add(successReward)
	c.appendHistory(now, "success")
	c.UpdatedAt = now.UTC()
}

// RecordViolation applies one violation of the given type. The penalty is
// the type's base penalty amplified by the consecutive-violation streak,
// capped at 5x. Returns the penalty actually applied.
func (c *Client) RecordViolation(vtype violation.Type, now time.Time) float64 {
	c.TotalRequests++
	c.ViolationCount++
	c.ConsecutiveViolations++
	if c.ConsecutiveViolations > c.MaxConsecutiveViolations {
		c.MaxConsecutiveViolations = c.ConsecutiveViolations
	}

	switch vtype {
	case violation.TypeSuspiciousPattern:
		c.SuspiciousPatternCount++
	case violation.TypeCompliance:
		c.ComplianceViolationCount++
	}

	multiplier := 1 + 0.5*float64(c.ConsecutiveViolations-1)
	if multiplier > maxPenaltyMultiplier {
		multiplier = maxPenaltyMultiplier
	}
	penalty := basePenalty(vtype) * multiplier

	c.Score = c.Score.Subtract(penalty)
	c.appendHistory(now, vtype.String())
	c.UpdatedAt = now.UTC()
	return penalty
}

// basePenalty maps a violation type to its unamplified score penalty.
func basePenalty(vtype violation.Type) float64 {
	switch vtype {
	case violation.TypeRateLimit:
		return 1
	case violation.TypeVolumeLimit:
		return 3
	case violation.TypeSuspiciousPattern:
		return 8
	case violation.TypeCompliance:
		return 15
	default:
		return 3
	}
}

// Tier derives the client's current risk tier.
func (c *Client) Tier() RiskTier {
	return DeriveTier(c.Score.Value(), c.ConsecutiveViolations)
}

// TrustScore folds the full violation and behavioral picture into a single
// 0-100 trust figure. Unlike the reputation score it is recomputed on
// demand, not stored.
func (c *Client) TrustScore() values.Score {
	raw := c.Score.Value() -
		2*float64(c.ViolationCount) -
		5*float64(c.ConsecutiveViolations) -
		3*float64(c.SuspiciousPatternCount) -
		10*float64(c.ComplianceViolationCount) -
		20*c.BehavioralAnomalyScore -
		15*c.AutomationProbability
	return values.ClampedScore(raw)
}

// ObserveBehavioralSignals folds a fresh anomaly composite and automation
// estimate into the stored signals with exponential smoothing, so one noisy
// request does not whipsaw the trust score.
func (c *Client) ObserveBehavioralSignals(anomalyScore, automationProbability float64, now time.Time) {
	c.BehavioralAnomalyScore = smooth(c.BehavioralAnomalyScore, clampUnit(anomalyScore))
	c.AutomationProbability = smooth(c.AutomationProbability, clampUnit(automationProbability))
	c.UpdatedAt = now.UTC()
}

// RecoverDaily nudges an idle, violation-free client's score up by one
// point. Used by the out-of-band recovery sweep.
func (c *Client) RecoverDaily(now time.Time) {
	if c.ConsecutiveViolations > 0 {
		return
	}
	c.Score = c.Score.Add(1)
	c.appendHistory(now, "daily_recovery")
	c.UpdatedAt = now.UTC()
}

func (c *Client) appendHistory(now time.Time, event string) {
	c.History = append(c.History, HistoryEvent{
		Timestamp: now.UTC(),
		Score:     c.Score.Value(),
		Event:     event,
	})
	if len(c.History) > maxHistoryEvents {
		c.History = c.History[len(c.History)-maxHistoryEvents:]
	}
}

func smooth(previous, observed float64) float64 {
	return (1-signalSmoothing)*previous + signalSmoothing*observed
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
