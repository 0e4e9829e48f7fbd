package access

import (
	"time"

	"github.com/google/uuid"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/values"
)

// Entry is one immutable record in the access ledger: who touched which
// category of learner data, how much of it, and when. Entries are append
// only; nothing in the system updates or deletes them.
type Entry struct {
	ID               uuid.UUID             `json:"id"`
	TenantID         uuid.UUID             `json:"tenant_id"`
	ClientID         uuid.UUID             `json:"client_id"`
	ActorID          uuid.UUID             `json:"actor_id"`
	Category         DataCategory          `json:"data_category"`
	ByteSize         values.ByteSize       `json:"byte_size"`
	Succeeded        bool                  `json:"succeeded"`
	SessionID        string                `json:"session_id,omitempty"`
	SourceNetwork    string                `json:"source_network,omitempty"`
	AgentFingerprint string                `json:"agent_fingerprint,omitempty"`
	Timestamp        time.Time             `json:"timestamp"`
}

// NewEntry creates a validated ledger entry. Malformed attributes (negative
// byte sizes, unknown categories, zero identifiers) are rejected here so
// they never reach storage.
func NewEntry(tenantID, clientID, actorID uuid.UUID, category DataCategory, byteSize int64, succeeded bool, timestamp time.Time) (*Entry, error) {
	if tenantID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_TENANT", "tenant ID is required")
	}
	if clientID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_CLIENT", "client ID is required")
	}
	if actorID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ACTOR", "actor ID is required")
	}
	if !category.IsValid() {
		return nil, errors.NewValidationError("UNKNOWN_DATA_CATEGORY",
			"data category must be one of the known classes")
	}
	size, err := values.NewByteSize(byteSize)
	if err != nil {
		return nil, err
	}
	if timestamp.IsZero() {
		return nil, errors.NewIntegrityError("timestamp", "entry timestamp is required")
	}

	return &Entry{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ClientID:  clientID,
		ActorID:   actorID,
		Category:  category,
		ByteSize:  size,
		Succeeded: succeeded,
		Timestamp: timestamp.UTC(),
	}, nil
}

// WithSession attaches session context used by session-duration baselining.
func (e *Entry) WithSession(sessionID string) *Entry {
	e.SessionID = sessionID
	return e
}

// WithOrigin attaches the request's network range and agent fingerprint,
// used by the evasion detector and the geographic/agent anomaly dimensions.
func (e *Entry) WithOrigin(sourceNetwork, agentFingerprint string) *Entry {
	e.SourceNetwork = sourceNetwork
	e.AgentFingerprint = agentFingerprint
	return e
}

// Age returns how long ago the entry was recorded.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}
