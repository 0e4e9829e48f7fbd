package access

import (
	"time"

	"github.com/google/uuid"
)

// Request is the input to an access evaluation: a client asking, on behalf
// of an actor, to read an estimated number of bytes from one data category.
// Origin fields are optional context consumed by the behavioral detectors.
type Request struct {
	TenantID         uuid.UUID    `json:"tenant_id" validate:"required"`
	ClientID         uuid.UUID    `json:"client_id" validate:"required"`
	ActorID          uuid.UUID    `json:"actor_id" validate:"required"`
	Category         DataCategory `json:"data_category" validate:"required,oneof=profile behavioral assessment real_time aggregated"`
	EstimatedBytes   int64        `json:"estimated_bytes" validate:"gte=0"`
	SessionID        string       `json:"session_id,omitempty" validate:"omitempty,max=128"`
	ScopeToken       string       `json:"scope_token,omitempty" validate:"omitempty,max=4096"`
	SourceNetwork    string       `json:"source_network,omitempty" validate:"omitempty,max=64"`
	AgentFingerprint string       `json:"agent_fingerprint,omitempty" validate:"omitempty,max=128"`
	Now              time.Time    `json:"now" validate:"required"`
}

// ToEntry materializes the ledger entry for a decided request.
func (r Request) ToEntry(succeeded bool) (*Entry, error) {
	entry, err := NewEntry(r.TenantID, r.ClientID, r.ActorID, r.Category, r.EstimatedBytes, succeeded, r.Now)
	if err != nil {
		return nil, err
	}
	return entry.WithSession(r.SessionID).WithOrigin(r.SourceNetwork, r.AgentFingerprint), nil
}
