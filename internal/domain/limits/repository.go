package limits

import (
	"context"

	"github.com/google/uuid"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
)

// Repository resolves tenant-specific limit overrides. The deterministic
// defaults live in the tracker; this surface only answers "has this
// tenant pinned explicit limits for this (category, tier)".
type Repository interface {
	// Override returns the tenant's explicit limits for the pair. Returns
	// errors.ErrLimitsNotFound when the tenant has no override row.
	Override(ctx context.Context, tenantID uuid.UUID, category access.DataCategory, tier reputation.RiskTier) (*Limits, error)
}
