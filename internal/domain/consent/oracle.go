package consent

import (
	"context"

	"github.com/google/uuid"
)

// Purpose is the declared reason an actor needs learner data. Consent is
// granted per purpose, not per request.
type Purpose string

const (
	PurposeInstruction     Purpose = "instruction"
	PurposeAssessment      Purpose = "assessment"
	PurposeResearch        Purpose = "research"
	PurposeProductAnalytics Purpose = "product_analytics"
)

// IsValid reports whether the purpose is one of the known values.
func (p Purpose) IsValid() bool {
	switch p {
	case PurposeInstruction, PurposeAssessment, PurposeResearch, PurposeProductAnalytics:
		return true
	}
	return false
}

func (p Purpose) String() string {
	return string(p)
}

// Oracle answers whether an actor holds consent for a purpose. It is an
// external collaborator: callers consult it BEFORE asking the policy
// engine for a verdict. The engine itself never calls it; by the time a
// request reaches evaluation, consent is assumed settled.
type Oracle interface {
	HasConsent(ctx context.Context, tenantID, actorID uuid.UUID, purpose Purpose) (bool, error)
}
