package limits

import (
	"time"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
)

// Limits is the effective rate and volume envelope for one (category,
// risk tier) pair. Instances are derived deterministically from the
// category base limits scaled by the tier multiplier, unless a tenant
// override row supplies explicit values.
type Limits struct {
	Category              access.DataCategory `json:"data_category"`
	Tier                  reputation.RiskTier `json:"risk_tier"`
	RequestsPerMinute     int                 `json:"requests_per_minute"`
	WindowMinutes         int                 `json:"window_minutes"`
	BurstAllowance        int                 `json:"burst_allowance"`
	MaxConcurrentSessions int                 `json:"max_concurrent_sessions"`
	DailyVolume           values.ByteSize     `json:"daily_volume_bytes"`
}

// Window is the sliding rate window as a duration.
func (l Limits) Window() time.Duration {
	return time.Duration(l.WindowMinutes) * time.Minute
}

// MaxRequests is the request ceiling for one full window including the
// burst allowance.
func (l Limits) MaxRequests() int {
	return l.RequestsPerMinute*l.WindowMinutes + l.BurstAllowance
}
