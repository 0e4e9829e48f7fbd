package reputation

// RiskTier buckets a client by how much the system currently trusts it.
// The tier is always derived from score and consecutive violations, never
// stored as independent state.
type RiskTier string

const (
	TierLow      RiskTier = "low"
	TierMedium   RiskTier = "medium"
	TierHigh     RiskTier = "high"
	TierCritical RiskTier = "critical"
)

// DeriveTier computes the risk tier from a reputation score and the current
// consecutive-violation streak. It is a pure function; recomputing it from
// the same inputs always yields the same tier.
func DeriveTier(score float64, consecutiveViolations int) RiskTier {
	switch {
	case score < 30 || consecutiveViolations >= 5:
		return TierCritical
	case score < 60 || consecutiveViolations >= 3:
		return TierHigh
	case score < 80 || consecutiveViolations >= 2:
		return TierMedium
	default:
		return TierLow
	}
}

// LimitMultiplier scales category base limits down for elevated tiers. A
// low-risk client keeps the full allowance; a critical one is squeezed to a
// tenth of it.
func (t RiskTier) LimitMultiplier() float64 {
	switch t {
	case TierCritical:
		return 0.1
	case TierHigh:
		return 0.25
	case TierMedium:
		return 0.5
	default:
		return 1.0
	}
}

// AtLeast reports whether the tier is at or above the given tier in
// ascending risk order low < medium < high < critical.
func (t RiskTier) AtLeast(other RiskTier) bool {
	return t.rank() >= other.rank()
}

func (t RiskTier) rank() int {
	switch t {
	case TierCritical:
		return 3
	case TierHigh:
		return 2
	case TierMedium:
		return 1
	default:
		return 0
	}
}

func (t RiskTier) String() string {
	return string(t)
}
