package policy

import (
	"math"
	"time"

	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
)

// Reason is the non-specific denial category surfaced to the caller. Raw
// detector confidences and anomaly scores stay internal; a denied client
// never learns enough to calibrate evasion.
type Reason string

const (
	ReasonAllowed             Reason = "allowed"
	ReasonEnhancedMonitoring  Reason = "enhanced_monitoring"
	ReasonRateLimit           Reason = "rate_limit_exceeded"
	ReasonVolumeLimit         Reason = "volume_limit_exceeded"
	ReasonSuspiciousPattern   Reason = "suspicious_pattern_detected"
	ReasonBehavioralAnomaly   Reason = "behavioral_anomaly"
	ReasonClientUntrusted     Reason = "client_untrusted"
	ReasonRiskDataUnavailable Reason = "risk_data_unavailable"
)

// Action is the remediation hint attached to a verdict.
type Action string

const (
	ActionNone                 Action = "none"
	ActionReduceRequestRate    Action = "reduce_request_rate"
	ActionReduceTransferVolume Action = "reduce_transfer_volume"
	ActionEnhancedMonitoring   Action = "enhanced_monitoring"
	ActionManualReview         Action = "manual_review_required"
	ActionImmediateSuspension  Action = "immediate_suspension"
	ActionClientReview         Action = "client_review_required"
	ActionRetryLater           Action = "retry_later"
)

// Verdict is the structured outcome of one access evaluation. Denials are
// values, not errors; the caller always gets a verdict it can act on.
type Verdict struct {
	Allowed            bool           `json:"allowed"`
	Reason             Reason         `json:"reason"`
	ViolationType      violation.Type `json:"violation_type,omitempty"`
	RetryAfterSeconds  int64          `json:"retry_after_seconds,omitempty"`
	RecommendedAction  Action         `json:"recommended_action"`
	RiskScore          float64        `json:"risk_score"`
	EnhancedMonitoring bool           `json:"enhanced_monitoring,omitempty"`
}

// RecommendAction maps a denial's risk tier and violation type to the
// remediation hint. It is a pure function: same inputs, same hint. The
// reputation gate overrides the tier mapping because an untrusted client
// needs a human decision about the client itself, not about this request.
func RecommendAction(tier reputation.RiskTier, vtype violation.Type, reason Reason) Action {
	if reason == ReasonClientUntrusted {
		return ActionClientReview
	}
	if tier == reputation.TierCritical {
		return ActionImmediateSuspension
	}
	if tier == reputation.TierHigh {
		return ActionManualReview
	}

	switch vtype {
	case violation.TypeRateLimit:
		return ActionReduceRequestRate
	case violation.TypeVolumeLimit:
		return ActionReduceTransferVolume
	default:
		return ActionEnhancedMonitoring
	}
}

// retrySeconds converts a retry hint to whole seconds, rounding up so the
// caller never retries before the window has actually aged out.
func retrySeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// riskScore folds the client's trust picture into the 0-100 risk figure
// carried on every verdict. High trust means low risk.
func riskScore(client *reputation.Client) float64 {
	if client == nil {
		return 100
	}
	return 100 - client.TrustScore().Value()
}
