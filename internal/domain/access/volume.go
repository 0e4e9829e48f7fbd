package access

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/learnershield/learner-data-gateway/internal/domain/values"
)

// VolumeBucket aggregates one client/actor/category/day slice of the
// ledger. Buckets are incremented atomically on each accepted access and
// feed the historical per-client volume baseline.
type VolumeBucket struct {
	TenantID     uuid.UUID       `json:"tenant_id"`
	ClientID     uuid.UUID       `json:"client_id"`
	ActorID      uuid.UUID       `json:"actor_id"`
	Category     DataCategory    `json:"data_category"`
	Day          time.Time       `json:"day"`
	TotalBytes   values.ByteSize `json:"total_bytes"`
	RequestCount int64           `json:"request_count"`
}

// DayVolume is one day's total across all of a client's buckets.
type DayVolume struct {
	Day        time.Time       `json:"day"`
	TotalBytes values.ByteSize `json:"total_bytes"`
	Requests   int64           `json:"requests"`
}

// VolumeRepository persists the durable day buckets backing volume
// history. The live 24h rolling window is tracked separately; these rows
// answer "what does a normal day look like for this client".
type VolumeRepository interface {
	// IncrementDay atomically folds one accepted entry into its bucket.
	IncrementDay(ctx context.Context, entry *Entry) error

	// DailyTotals returns the client's per-day totals for the trailing
	// number of days, oldest first. Days with no traffic are absent.
	DailyTotals(ctx context.Context, tenantID, clientID uuid.UUID, days int, now time.Time) ([]DayVolume, error)
}

// BucketDay truncates a timestamp to its UTC day.
func BucketDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
