package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/limits"
	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
)

// LimitsRepository implements limits.Repository on the rate_limit_config
// table of per-tenant override rows.
type LimitsRepository struct {
	db Querier
}

// NewLimitsRepository creates a new PostgreSQL limits repository
func NewLimitsRepository(db Querier) *LimitsRepository {
	return &LimitsRepository{db: db}
}

// Override returns the tenant's explicit limits for (category, tier).
func (r *LimitsRepository) Override(ctx context.Context, tenantID uuid.UUID, category access.DataCategory, tier reputation.RiskTier) (*limits.Limits, error) {
	var l limits.Limits
	var cat, riskTier string
	var dailyVolumeBytes int64

	err := r.db.QueryRow(ctx, `
		SELECT data_category, risk_tier, requests_per_minute, window_minutes,
		       burst_allowance, max_concurrent_sessions, daily_volume_bytes
		FROM rate_limit_config
		WHERE tenant_id = $1 AND data_category = $2 AND risk_tier = $3
	`, tenantID, string(category), string(tier)).Scan(
		&cat, &riskTier, &l.RequestsPerMinute, &l.WindowMinutes,
		&l.BurstAllowance, &l.MaxConcurrentSessions, &dailyVolumeBytes)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrLimitsNotFound
		}
		return nil, errors.NewDataUnavailableError("rate_limit_config", "failed to load limit override").WithCause(err)
	}

	l.Category = access.DataCategory(cat)
	l.Tier = reputation.RiskTier(riskTier)
	if err := l.DailyVolume.Scan(dailyVolumeBytes); err != nil {
		return nil, err
	}

	return &l, nil
}
