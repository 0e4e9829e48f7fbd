package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
)

// ReputationRepository implements reputation.Repository on Postgres.
type ReputationRepository struct {
	db Querier
}

// NewReputationRepository creates a new PostgreSQL reputation repository
func NewReputationRepository(db Querier) *ReputationRepository {
	return &ReputationRepository{db: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *ReputationRepository) WithTx(tx Querier) *ReputationRepository {
	return &ReputationRepository{db: tx}
}

// Get loads a client's reputation record.
func (r *ReputationRepository) Get(ctx context.Context, tenantID, clientID uuid.UUID) (*reputation.Client, error) {
	row := r.db.QueryRow(ctx, `
		SELECT tenant_id, client_id, reputation_score, total_requests,
		       successful_requests, violation_count, consecutive_violations,
		       max_consecutive_violations, suspicious_pattern_count,
		       compliance_violation_count, behavioral_anomaly_score,
		       automation_probability, history, created_at, updated_at
		FROM client_reputation
		WHERE tenant_id = $1 AND client_id = $2
	`, tenantID, clientID)

	client, err := scanReputation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrClientNotFound
		}
		return nil, errors.NewDataUnavailableError("client_reputation", "failed to load reputation").WithCause(err)
	}

	return client, nil
}

// Save upserts the record. The row is replaced wholesale so concurrent
// savers cannot interleave partial states.
func (r *ReputationRepository) Save(ctx context.Context, client *reputation.Client) error {
	history, err := json.Marshal(client.History)
	if err != nil {
		return errors.NewInternalError("failed to marshal reputation history").WithCause(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO client_reputation (
			tenant_id, client_id, reputation_score, total_requests,
			successful_requests, violation_count, consecutive_violations,
			max_consecutive_violations, suspicious_pattern_count,
			compliance_violation_count, behavioral_anomaly_score,
			automation_probability, history, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tenant_id, client_id) DO UPDATE SET
			reputation_score = EXCLUDED.reputation_score,
			total_requests = EXCLUDED.total_requests,
			successful_requests = EXCLUDED.successful_requests,
			violation_count = EXCLUDED.violation_count,
			consecutive_violations = EXCLUDED.consecutive_violations,
			max_consecutive_violations = EXCLUDED.max_consecutive_violations,
			suspicious_pattern_count = EXCLUDED.suspicious_pattern_count,
			compliance_violation_count = EXCLUDED.compliance_violation_count,
			behavioral_anomaly_score = EXCLUDED.behavioral_anomaly_score,
			automation_probability = EXCLUDED.automation_probability,
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at
	`, client.TenantID, client.ClientID, client.Score.Value(), client.TotalRequests,
		client.SuccessfulRequests, client.ViolationCount, client.ConsecutiveViolations,
		client.MaxConsecutiveViolations, client.SuspiciousPatternCount,
		client.ComplianceViolationCount, client.BehavioralAnomalyScore,
		client.AutomationProbability, history, client.CreatedAt, client.UpdatedAt)

	if err != nil {
		return errors.NewDataUnavailableError("client_reputation", "failed to save reputation").WithCause(err)
	}

	return nil
}

// ListViolationFree returns clients in the tenant whose latest violation,
// if any, is older than the given time.
func (r *ReputationRepository) ListViolationFree(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]*reputation.Client, error) {
	rows, err := r.db.Query(ctx, `
		SELECT cr.tenant_id, cr.client_id, cr.reputation_score, cr.total_requests,
		       cr.successful_requests, cr.violation_count, cr.consecutive_violations,
		       cr.max_consecutive_violations, cr.suspicious_pattern_count,
		       cr.compliance_violation_count, cr.behavioral_anomaly_score,
		       cr.automation_probability, cr.history, cr.created_at, cr.updated_at
		FROM client_reputation cr
		WHERE cr.tenant_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM violations v
			WHERE v.tenant_id = cr.tenant_id
			  AND v.client_id = cr.client_id
			  AND v.detected_at >= $2
		  )
	`, tenantID, since)
	if err != nil {
		return nil, errors.NewDataUnavailableError("client_reputation", "failed to list violation-free clients").WithCause(err)
	}
	defer rows.Close()

	var clients []*reputation.Client
	for rows.Next() {
		client, err := scanReputation(rows)
		if err != nil {
			return nil, errors.NewDataUnavailableError("client_reputation", "failed to scan reputation").WithCause(err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDataUnavailableError("client_reputation", "reputation iteration failed").WithCause(err)
	}

	return clients, nil
}

func scanReputation(row rowScanner) (*reputation.Client, error) {
	var client reputation.Client
	var score float64
	var history []byte

	err := row.Scan(&client.TenantID, &client.ClientID, &score, &client.TotalRequests,
		&client.SuccessfulRequests, &client.ViolationCount, &client.ConsecutiveViolations,
		&client.MaxConsecutiveViolations, &client.SuspiciousPatternCount,
		&client.ComplianceViolationCount, &client.BehavioralAnomalyScore,
		&client.AutomationProbability, &history, &client.CreatedAt, &client.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := client.Score.Scan(score); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &client.History); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal reputation history").WithCause(err)
		}
	}

	return &client, nil
}
