package patterns

import (
	"context"
	"fmt"

	"github.com/learnershield/learner-data-gateway/internal/domain/values"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
)

// escalationDetector flags requests reaching outside the client's
// authorized category scope, and clients with compliance violations
// already on record in the tenant's recent history. Scope overreach is
// the clearest abuse signal the gateway sees: the client is asking for
// data its integration contract never covered.
type escalationDetector struct{}

// NewEscalationDetector creates the privilege-escalation detector.
func NewEscalationDetector() Detector {
	return escalationDetector{}
}

func (escalationDetector) Name() string { return NameEscalation }

func (escalationDetector) Check(_ context.Context, in *Input) Finding {
	if in.Grant != nil && !in.Grant.Covers(in.Request.Category) {
		confidence := values.MustNewConfidence(0.9)
		if in.Grant.Degraded {
			// Default scopes, not the client's real contract; still
			// suspicious, but the overreach may be our own blind spot.
			confidence = values.MustNewConfidence(0.6)
		}
		return Finding{
			Detector:   NameEscalation,
			Detected:   true,
			Confidence: confidence,
			Evidence: fmt.Sprintf("category %q outside authorized scope (degraded=%v)",
				in.Request.Category, in.Grant.Degraded),
		}
	}

	priors := 0
	for _, v := range in.TenantViolations {
		if v.ClientID == in.Request.ClientID && v.Type == violation.TypeCompliance {
			priors++
		}
	}
	if priors > 0 {
		return Finding{
			Detector:   NameEscalation,
			Detected:   true,
			Confidence: values.SaturatingConfidence(0.5 + 0.15*float64(priors)),
			Evidence:   fmt.Sprintf("%d compliance violations on record in the last 24h", priors),
		}
	}

	return notDetected(NameEscalation)
}
