package database

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/learnershield/learner-data-gateway/internal/domain/audit"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
)

// AuditRepository is the durable end of the audit pipeline. Append
// assigns the next sequence number, chains the event hash onto its
// predecessor, and inserts the sealed row, all inside one transaction so
// two appenders cannot claim the same chain position.
type AuditRepository struct {
	pool *ConnectionPool
}

// NewAuditRepository creates a new PostgreSQL audit repository
func NewAuditRepository(pool *ConnectionPool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append seals the event into the hash chain and persists it.
func (r *AuditRepository) Append(ctx context.Context, event *audit.Event) error {
	return r.pool.Transaction(ctx, func(tx pgx.Tx) error {
		var lastSeq int64
		var lastHash string

		err := tx.QueryRow(ctx, `
			SELECT sequence_num, event_hash
			FROM audit_events
			ORDER BY sequence_num DESC
			LIMIT 1
			FOR UPDATE
		`).Scan(&lastSeq, &lastHash)
		if err != nil && err != pgx.ErrNoRows {
			return errors.NewDataUnavailableError("audit_events", "failed to read chain head").WithCause(err)
		}

		event.SequenceNum = lastSeq + 1
		if _, err := event.ComputeHash(lastHash); err != nil {
			return err
		}

		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return errors.NewInternalError("failed to marshal audit metadata").WithCause(err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO audit_events (
				id, sequence_num, occurred_at, timestamp_nano, event_type,
				tenant_id, client_id, actor_id, action, result, metadata,
				previous_hash, event_hash
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, event.ID, event.SequenceNum, event.Timestamp, event.TimestampNano,
			string(event.Type), event.TenantID, event.ClientID, event.ActorID,
			event.Action, event.Result, metadata, event.PreviousHash, event.EventHash)

		if err != nil {
			return errors.NewDataUnavailableError("audit_events", "failed to append audit event").WithCause(err)
		}

		return nil
	})
}

// VerifyChain walks the stored chain and reports the first sequence
// number whose hash does not verify, or 0 when the chain is intact.
func (r *AuditRepository) VerifyChain(ctx context.Context) (int64, error) {
	rows, err := r.pool.Pool().Query(ctx, `
		SELECT id, sequence_num, occurred_at, timestamp_nano, event_type,
		       tenant_id, client_id, actor_id, action, result,
		       previous_hash, event_hash
		FROM audit_events
		ORDER BY sequence_num ASC
	`)
	if err != nil {
		return 0, errors.NewDataUnavailableError("audit_events", "failed to read audit chain").WithCause(err)
	}
	defer rows.Close()

	previousHash := ""
	for rows.Next() {
		var stored audit.StoredEvent
		err := rows.Scan(&stored.ID, &stored.SequenceNum, &stored.Timestamp,
			&stored.TimestampNano, &stored.Type, &stored.TenantID,
			&stored.ClientID, &stored.ActorID, &stored.Action, &stored.Result,
			&stored.PreviousHash, &stored.EventHash)
		if err != nil {
			return 0, errors.NewDataUnavailableError("audit_events", "failed to scan audit event").WithCause(err)
		}

		if !stored.VerifiesAfter(previousHash) {
			return stored.SequenceNum, nil
		}
		previousHash = stored.EventHash
	}
	if err := rows.Err(); err != nil {
		return 0, errors.NewDataUnavailableError("audit_events", "audit chain iteration failed").WithCause(err)
	}

	return 0, nil
}
