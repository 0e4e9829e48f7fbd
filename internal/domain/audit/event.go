package audit

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
)

// EventType classifies what happened.
type EventType string

const (
	EventAccessAllowed     EventType = "access.allowed"
	EventAccessDenied      EventType = "access.denied"
	EventViolationRecorded EventType = "violation.recorded"
	EventAnomalyDetected   EventType = "anomaly.detected"
	EventReputationChanged EventType = "reputation.changed"
	EventBaselineRebuilt   EventType = "baseline.rebuilt"
	EventSessionsRevoked   EventType = "sessions.revoked"
)

func validEventType(t EventType) bool {
	switch t {
	case EventAccessAllowed, EventAccessDenied, EventViolationRecorded,
		EventAnomalyDetected, EventReputationChanged, EventBaselineRebuilt,
		EventSessionsRevoked:
		return true
	}
	return false
}

// Event is one immutable audit record. Events are hash-chained: each one
// commits to its predecessor's hash, so any later tampering breaks the
// chain from that point forward.
type Event struct {
	ID            uuid.UUID `json:"id"`
	SequenceNum   int64     `json:"sequence_num"`
	Timestamp     time.Time `json:"timestamp"`
	TimestampNano int64     `json:"timestamp_nano"`

	Type     EventType `json:"type"`
	TenantID uuid.UUID `json:"tenant_id"`
	ClientID uuid.UUID `json:"client_id"`
	ActorID  uuid.UUID `json:"actor_id,omitempty"`

	Action string `json:"action"`
	Result string `json:"result"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	PreviousHash string `json:"previous_hash"`
	EventHash    string `json:"event_hash"`

	// immutable is set once the hash is computed; the event can no
	// longer be modified through domain methods after that.
	immutable bool `json:"-"`
}

// NewEvent creates an audit event with validation. The event stays mutable
// until ComputeHash seals it.
func NewEvent(eventType EventType, tenantID, clientID uuid.UUID, action string, occurredAt time.Time) (*Event, error) {
	if !validEventType(eventType) {
		return nil, errors.NewValidationError("INVALID_EVENT_TYPE",
			fmt.Sprintf("unknown audit event type %q", eventType))
	}
	if tenantID == uuid.Nil || clientID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_IDENTITY",
			"audit event requires tenant and client identifiers")
	}
	if action == "" {
		return nil, errors.NewValidationError("MISSING_ACTION", "action is required")
	}

	ts := occurredAt.UTC()
	return &Event{
		ID:            uuid.New(),
		Timestamp:     ts,
		TimestampNano: ts.UnixNano(),
		Type:          eventType,
		TenantID:      tenantID,
		ClientID:      clientID,
		Action:        action,
		Result:        "success",
		Metadata:      make(map[string]interface{}),
	}, nil
}

// WithActor attaches the acting user identity.
func (e *Event) WithActor(actorID uuid.UUID) *Event {
	if !e.immutable {
		e.ActorID = actorID
	}
	return e
}

// WithResult overrides the default "success" result.
func (e *Event) WithResult(result string) *Event {
	if !e.immutable {
		e.Result = result
	}
	return e
}

// WithMetadata adds one metadata key. No-op once the event is sealed.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if !e.immutable {
		e.Metadata[key] = value
	}
	return e
}

// ComputeHash chains the event onto previousHash and seals it. Only fields
// that are fixed at append time participate in the hash.
func (e *Event) ComputeHash(previousHash string) (string, error) {
	if e.immutable {
		return "", errors.NewBusinessError("EVENT_IMMUTABLE",
			"cannot compute hash on a sealed event")
	}

	e.PreviousHash = previousHash

	hashData := map[string]interface{}{
		"id":             e.ID.String(),
		"sequence_num":   e.SequenceNum,
		"timestamp_nano": e.TimestampNano,
		"type":           string(e.Type),
		"tenant_id":      e.TenantID.String(),
		"client_id":      e.ClientID.String(),
		"actor_id":       e.ActorID.String(),
		"action":         e.Action,
		"result":         e.Result,
		"previous_hash":  e.PreviousHash,
	}

	jsonBytes, err := json.Marshal(hashData)
	if err != nil {
		return "", errors.NewInternalError("failed to marshal hash data").WithCause(err)
	}

	hash := sha256.Sum256(jsonBytes)
	e.EventHash = fmt.Sprintf("%x", hash)
	e.immutable = true

	return e.EventHash, nil
}

// VerifyHash recomputes the hash from the sealed fields and compares.
func (e *Event) VerifyHash() bool {
	if !e.immutable && e.EventHash == "" {
		return false
	}

	hashData := map[string]interface{}{
		"id":             e.ID.String(),
		"sequence_num":   e.SequenceNum,
		"timestamp_nano": e.TimestampNano,
		"type":           string(e.Type),
		"tenant_id":      e.TenantID.String(),
		"client_id":      e.ClientID.String(),
		"actor_id":       e.ActorID.String(),
		"action":         e.Action,
		"result":         e.Result,
		"previous_hash":  e.PreviousHash,
	}

	jsonBytes, err := json.Marshal(hashData)
	if err != nil {
		return false
	}

	hash := sha256.Sum256(jsonBytes)
	return e.EventHash == fmt.Sprintf("%x", hash)
}

// IsImmutable reports whether the event has been sealed.
func (e *Event) IsImmutable() bool {
	return e.immutable
}
