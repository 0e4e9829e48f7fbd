package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/baseline"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
)

// BaselineRepository implements baseline.Repository on Postgres. Versions
// are append-only rows; the (tenant, client, version) key plus the insert
// guard in Save enforce version monotonicity.
type BaselineRepository struct {
	db Querier
}

// NewBaselineRepository creates a new PostgreSQL baseline repository
func NewBaselineRepository(db Querier) *BaselineRepository {
	return &BaselineRepository{db: db}
}

// Latest loads the client's newest baseline version.
func (r *BaselineRepository) Latest(ctx context.Context, tenantID, clientID uuid.UUID) (*baseline.Baseline, error) {
	row := r.db.QueryRow(ctx, `
		SELECT tenant_id, client_id, version, learning_period_days,
		       sample_count, mean_request_size, request_size_std_dev,
		       mean_requests_per_hour, peak_hours, category_distribution,
		       mean_session_seconds, session_std_dev_seconds,
		       network_ranges, agent_fingerprints, confidence, created_at
		FROM behavioral_baseline
		WHERE tenant_id = $1 AND client_id = $2
		ORDER BY version DESC
		LIMIT 1
	`, tenantID, clientID)

	b, err := scanBaseline(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrBaselineNotFound
		}
		return nil, errors.NewDataUnavailableError("behavioral_baseline", "failed to load baseline").WithCause(err)
	}

	return b, nil
}

// Save appends a new baseline version. A duplicate or stale version hits
// the primary key and surfaces as a conflict.
func (r *BaselineRepository) Save(ctx context.Context, b *baseline.Baseline) error {
	peakHours, err := json.Marshal(b.PeakHours)
	if err != nil {
		return errors.NewInternalError("failed to marshal peak hours").WithCause(err)
	}
	distribution, err := json.Marshal(b.CategoryDistribution)
	if err != nil {
		return errors.NewInternalError("failed to marshal category distribution").WithCause(err)
	}
	networks, err := json.Marshal(b.NetworkRanges)
	if err != nil {
		return errors.NewInternalError("failed to marshal network ranges").WithCause(err)
	}
	agents, err := json.Marshal(b.AgentFingerprints)
	if err != nil {
		return errors.NewInternalError("failed to marshal agent fingerprints").WithCause(err)
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO behavioral_baseline (
			tenant_id, client_id, version, learning_period_days,
			sample_count, mean_request_size, request_size_std_dev,
			mean_requests_per_hour, peak_hours, category_distribution,
			mean_session_seconds, session_std_dev_seconds,
			network_ranges, agent_fingerprints, confidence, created_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		WHERE NOT EXISTS (
			SELECT 1 FROM behavioral_baseline
			WHERE tenant_id = $1 AND client_id = $2 AND version >= $3
		)
	`, b.TenantID, b.ClientID, b.Version, b.LearningPeriodDays,
		b.SampleCount, b.MeanRequestSize, b.RequestSizeStdDev,
		b.MeanRequestsPerHour, peakHours, distribution,
		b.MeanSessionSeconds, b.SessionStdDevSeconds,
		networks, agents, b.Confidence.Value(), b.CreatedAt)

	if err != nil {
		return errors.NewDataUnavailableError("behavioral_baseline", "failed to save baseline").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewConflictError("baseline version is not newer than the stored one")
	}

	return nil
}

func scanBaseline(row rowScanner) (*baseline.Baseline, error) {
	var b baseline.Baseline
	var confidence float64
	var peakHours, distribution, networks, agents []byte

	err := row.Scan(&b.TenantID, &b.ClientID, &b.Version, &b.LearningPeriodDays,
		&b.SampleCount, &b.MeanRequestSize, &b.RequestSizeStdDev,
		&b.MeanRequestsPerHour, &peakHours, &distribution,
		&b.MeanSessionSeconds, &b.SessionStdDevSeconds,
		&networks, &agents, &confidence, &b.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := b.Confidence.Scan(confidence); err != nil {
		return nil, err
	}
	if len(peakHours) > 0 {
		if err := json.Unmarshal(peakHours, &b.PeakHours); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal peak hours").WithCause(err)
		}
	}
	b.CategoryDistribution = map[access.DataCategory]float64{}
	if len(distribution) > 0 {
		if err := json.Unmarshal(distribution, &b.CategoryDistribution); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal category distribution").WithCause(err)
		}
	}
	if len(networks) > 0 {
		if err := json.Unmarshal(networks, &b.NetworkRanges); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal network ranges").WithCause(err)
		}
	}
	if len(agents) > 0 {
		if err := json.Unmarshal(agents, &b.AgentFingerprints); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal agent fingerprints").WithCause(err)
		}
	}

	return &b, nil
}
