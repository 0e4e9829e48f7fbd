package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
	"github.com/learnershield/learner-data-gateway/internal/testutil/fixtures"
)

func TestRecommendAction(t *testing.T) {
	tests := []struct {
		name   string
		tier   reputation.RiskTier
		vtype  violation.Type
		reason Reason
		want   Action
	}{
		{
			name:   "reputation gate always asks for client review",
			tier:   reputation.TierCritical,
			vtype:  violation.TypeCompliance,
			reason: ReasonClientUntrusted,
			want:   ActionClientReview,
		},
		{
			name:   "critical tier suspends regardless of violation type",
			tier:   reputation.TierCritical,
			vtype:  violation.TypeRateLimit,
			reason: ReasonRateLimit,
			want:   ActionImmediateSuspension,
		},
		{
			name:   "high tier escalates to manual review",
			tier:   reputation.TierHigh,
			vtype:  violation.TypeVolumeLimit,
			reason: ReasonVolumeLimit,
			want:   ActionManualReview,
		},
		{
			name:   "low tier rate breach gets rate advice",
			tier:   reputation.TierLow,
			vtype:  violation.TypeRateLimit,
			reason: ReasonRateLimit,
			want:   ActionReduceRequestRate,
		},
		{
			name:   "medium tier volume breach gets volume advice",
			tier:   reputation.TierMedium,
			vtype:  violation.TypeVolumeLimit,
			reason: ReasonVolumeLimit,
			want:   ActionReduceTransferVolume,
		},
		{
			name:   "low tier pattern denial gets watched",
			tier:   reputation.TierLow,
			vtype:  violation.TypeSuspiciousPattern,
			reason: ReasonSuspiciousPattern,
			want:   ActionEnhancedMonitoring,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecommendAction(tt.tier, tt.vtype, tt.reason))
		})
	}
}

func TestRetrySeconds(t *testing.T) {
	assert.EqualValues(t, 0, retrySeconds(0))
	assert.EqualValues(t, 0, retrySeconds(-time.Second))
	assert.EqualValues(t, 60, retrySeconds(time.Minute))
	assert.EqualValues(t, 61, retrySeconds(time.Minute+200*time.Millisecond), "hints round up, never down")
}

func TestRiskScore(t *testing.T) {
	assert.Equal(t, 100.0, riskScore(nil), "no record means maximum risk")

	trusted := fixtures.NewClientScenarios(t).Trusted()
	assert.Equal(t, 0.0, riskScore(trusted))

	critical := fixtures.NewClientScenarios(t).Critical()
	assert.Greater(t, riskScore(critical), 90.0)
}
