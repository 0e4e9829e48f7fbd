package audit

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StoredEvent is a chain row read back from storage for verification. It
// carries only the hashed fields, so verification never depends on how
// metadata was serialized.
type StoredEvent struct {
	ID            uuid.UUID
	SequenceNum   int64
	Timestamp     time.Time
	TimestampNano int64
	Type          string
	TenantID      uuid.UUID
	ClientID      uuid.UUID
	ActorID       uuid.UUID
	Action        string
	Result        string
	PreviousHash  string
	EventHash     string
}

// VerifiesAfter reports whether the stored event both chains onto
// previousHash and carries a hash matching its recomputed digest.
func (s StoredEvent) VerifiesAfter(previousHash string) bool {
	if s.PreviousHash != previousHash {
		return false
	}

	hashData := map[string]interface{}{
		"id":             s.ID.String(),
		"sequence_num":   s.SequenceNum,
		"timestamp_nano": s.TimestampNano,
		"type":           s.Type,
		"tenant_id":      s.TenantID.String(),
		"client_id":      s.ClientID.String(),
		"actor_id":       s.ActorID.String(),
		"action":         s.Action,
		"result":         s.Result,
		"previous_hash":  s.PreviousHash,
	}

	jsonBytes, err := json.Marshal(hashData)
	if err != nil {
		return false
	}

	hash := sha256.Sum256(jsonBytes)
	return s.EventHash == fmt.Sprintf("%x", hash)
}
