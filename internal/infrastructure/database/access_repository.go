package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
)

// AccessRepository implements the access.Repository ledger contract on
// Postgres. The access_log table is append only; this type exposes no
// update or delete.
type AccessRepository struct {
	db Querier
}

// NewAccessRepository creates a new PostgreSQL access ledger repository
func NewAccessRepository(db Querier) *AccessRepository {
	return &AccessRepository{db: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *AccessRepository) WithTx(tx Querier) *AccessRepository {
	return &AccessRepository{db: tx}
}

// Record appends one entry to the ledger.
func (r *AccessRepository) Record(ctx context.Context, entry *access.Entry) error {
	var sessionID, sourceNetwork, agentFingerprint sql.NullString
	if entry.SessionID != "" {
		sessionID = sql.NullString{String: entry.SessionID, Valid: true}
	}
	if entry.SourceNetwork != "" {
		sourceNetwork = sql.NullString{String: entry.SourceNetwork, Valid: true}
	}
	if entry.AgentFingerprint != "" {
		agentFingerprint = sql.NullString{String: entry.AgentFingerprint, Valid: true}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO access_log (
			id, tenant_id, client_id, actor_id, data_category,
			byte_size, succeeded, session_id, source_network,
			agent_fingerprint, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, entry.ID, entry.TenantID, entry.ClientID, entry.ActorID, string(entry.Category),
		entry.ByteSize.Bytes(), entry.Succeeded, sessionID, sourceNetwork,
		agentFingerprint, entry.Timestamp)

	if err != nil {
		return errors.NewDataUnavailableError("access_log", "failed to append ledger entry").WithCause(err)
	}

	return nil
}

// ListByClient returns a client's entries with timestamps in [from, to),
// ordered oldest first.
func (r *AccessRepository) ListByClient(ctx context.Context, tenantID, clientID uuid.UUID, from, to time.Time) ([]*access.Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, client_id, actor_id, data_category,
		       byte_size, succeeded, session_id, source_network,
		       agent_fingerprint, occurred_at
		FROM access_log
		WHERE tenant_id = $1 AND client_id = $2
		  AND occurred_at >= $3 AND occurred_at < $4
		ORDER BY occurred_at ASC
	`, tenantID, clientID, from, to)
	if err != nil {
		return nil, errors.NewDataUnavailableError("access_log", "failed to query ledger window").WithCause(err)
	}
	defer rows.Close()

	var entries []*access.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDataUnavailableError("access_log", "ledger window iteration failed").WithCause(err)
	}

	return entries, nil
}

// CountTenantActors returns the number of distinct actors in the
// tenant's ledger since the given time.
func (r *AccessRepository) CountTenantActors(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT actor_id)
		FROM access_log
		WHERE tenant_id = $1 AND occurred_at >= $2
	`, tenantID, since).Scan(&count)
	if err != nil {
		return 0, errors.NewDataUnavailableError("access_log", "failed to count tenant actors").WithCause(err)
	}

	return count, nil
}

// ActiveClients returns the distinct clients with ledger activity in the
// tenant since the given time.
func (r *AccessRepository) ActiveClients(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT client_id
		FROM access_log
		WHERE tenant_id = $1 AND occurred_at >= $2
	`, tenantID, since)
	if err != nil {
		return nil, errors.NewDataUnavailableError("access_log", "failed to list active clients").WithCause(err)
	}
	defer rows.Close()

	var clients []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewDataUnavailableError("access_log", "failed to scan client id").WithCause(err)
		}
		clients = append(clients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDataUnavailableError("access_log", "active client iteration failed").WithCause(err)
	}

	return clients, nil
}

// ActiveTenants returns the distinct tenants with ledger activity since
// the given time.
func (r *AccessRepository) ActiveTenants(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT tenant_id
		FROM access_log
		WHERE occurred_at >= $1
	`, since)
	if err != nil {
		return nil, errors.NewDataUnavailableError("access_log", "failed to list active tenants").WithCause(err)
	}
	defer rows.Close()

	var tenants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewDataUnavailableError("access_log", "failed to scan tenant id").WithCause(err)
		}
		tenants = append(tenants, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDataUnavailableError("access_log", "active tenant iteration failed").WithCause(err)
	}

	return tenants, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*access.Entry, error) {
	var entry access.Entry
	var category string
	var byteSize int64
	var sessionID, sourceNetwork, agentFingerprint sql.NullString

	err := row.Scan(&entry.ID, &entry.TenantID, &entry.ClientID, &entry.ActorID,
		&category, &byteSize, &entry.Succeeded, &sessionID, &sourceNetwork,
		&agentFingerprint, &entry.Timestamp)
	if err != nil {
		return nil, errors.NewDataUnavailableError("access_log", "failed to scan ledger entry").WithCause(err)
	}

	entry.Category = access.DataCategory(category)
	if err := entry.ByteSize.Scan(byteSize); err != nil {
		return nil, err
	}
	entry.SessionID = sessionID.String
	entry.SourceNetwork = sourceNetwork.String
	entry.AgentFingerprint = agentFingerprint.String

	return &entry, nil
}
