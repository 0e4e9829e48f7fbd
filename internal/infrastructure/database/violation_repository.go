package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
)

// ViolationRepository implements violation.Repository on Postgres,
// covering both the violations and anomaly_records tables.
type ViolationRepository struct {
	db Querier
}

// NewViolationRepository creates a new PostgreSQL violation repository
func NewViolationRepository(db Querier) *ViolationRepository {
	return &ViolationRepository{db: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *ViolationRepository) WithTx(tx Querier) *ViolationRepository {
	return &ViolationRepository{db: tx}
}

// RecordViolation appends a violation.
func (r *ViolationRepository) RecordViolation(ctx context.Context, v *violation.Violation) error {
	var automaticResponse sql.NullString
	if v.AutomaticResponse != "" {
		automaticResponse = sql.NullString{String: v.AutomaticResponse, Valid: true}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO violations (
			id, tenant_id, client_id, actor_id, violation_type,
			severity, detail, automatic_response, manual_review_required,
			detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, v.ID, v.TenantID, v.ClientID, v.ActorID, string(v.Type),
		string(v.Severity), v.Detail, automaticResponse, v.ManualReviewRequired,
		v.DetectedAt)

	if err != nil {
		return errors.NewDataUnavailableError("violations", "failed to record violation").WithCause(err)
	}

	return nil
}

// RecordAnomaly appends an anomaly record.
func (r *ViolationRepository) RecordAnomaly(ctx context.Context, record *violation.AnomalyRecord) error {
	scores, err := json.Marshal(record.Scores)
	if err != nil {
		return errors.NewInternalError("failed to marshal anomaly scores").WithCause(err)
	}
	patterns, err := json.Marshal(record.DetectedPatterns)
	if err != nil {
		return errors.NewInternalError("failed to marshal detected patterns").WithCause(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO anomaly_records (
			id, tenant_id, client_id, actor_id, anomaly_type,
			severity, confidence, detected_patterns, scores,
			investigation_required, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, record.ID, record.TenantID, record.ClientID, record.ActorID, record.AnomalyType,
		string(record.Severity), record.Confidence.Value(), patterns, scores,
		record.InvestigationRequired, record.DetectedAt)

	if err != nil {
		return errors.NewDataUnavailableError("anomaly_records", "failed to record anomaly").WithCause(err)
	}

	return nil
}

// CountByClientSince returns how many violations the client accrued since
// the given time.
func (r *ViolationRepository) CountByClientSince(ctx context.Context, tenantID, clientID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM violations
		WHERE tenant_id = $1 AND client_id = $2 AND detected_at >= $3
	`, tenantID, clientID, since).Scan(&count)
	if err != nil {
		return 0, errors.NewDataUnavailableError("violations", "failed to count client violations").WithCause(err)
	}

	return count, nil
}

// ListByTenantSince returns all violations in the tenant since the given
// time, newest first.
func (r *ViolationRepository) ListByTenantSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]*violation.Violation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, client_id, actor_id, violation_type,
		       severity, detail, automatic_response, manual_review_required,
		       detected_at
		FROM violations
		WHERE tenant_id = $1 AND detected_at >= $2
		ORDER BY detected_at DESC
	`, tenantID, since)
	if err != nil {
		return nil, errors.NewDataUnavailableError("violations", "failed to list tenant violations").WithCause(err)
	}
	defer rows.Close()

	var violations []*violation.Violation
	for rows.Next() {
		var v violation.Violation
		var vtype, severity string
		var automaticResponse sql.NullString

		err := rows.Scan(&v.ID, &v.TenantID, &v.ClientID, &v.ActorID, &vtype,
			&severity, &v.Detail, &automaticResponse, &v.ManualReviewRequired,
			&v.DetectedAt)
		if err != nil {
			return nil, errors.NewDataUnavailableError("violations", "failed to scan violation").WithCause(err)
		}

		v.Type = violation.Type(vtype)
		v.Severity = violation.Severity(severity)
		v.AutomaticResponse = automaticResponse.String
		violations = append(violations, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDataUnavailableError("violations", "violation iteration failed").WithCause(err)
	}

	return violations, nil
}
