package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
)

// VolumeRepository implements access.VolumeRepository on the
// volume_tracking day-bucket table.
type VolumeRepository struct {
	db Querier
}

// NewVolumeRepository creates a new PostgreSQL volume repository
func NewVolumeRepository(db Querier) *VolumeRepository {
	return &VolumeRepository{db: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *VolumeRepository) WithTx(tx Querier) *VolumeRepository {
	return &VolumeRepository{db: tx}
}

// IncrementDay atomically folds one accepted entry into its bucket. The
// upsert's additive SET keeps concurrent increments from losing updates.
func (r *VolumeRepository) IncrementDay(ctx context.Context, entry *access.Entry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO volume_tracking (
			tenant_id, client_id, actor_id, data_category, day,
			total_bytes, request_count
		) VALUES ($1, $2, $3, $4, $5, $6, 1)
		ON CONFLICT (tenant_id, client_id, actor_id, data_category, day) DO UPDATE SET
			total_bytes = volume_tracking.total_bytes + EXCLUDED.total_bytes,
			request_count = volume_tracking.request_count + 1
	`, entry.TenantID, entry.ClientID, entry.ActorID, string(entry.Category),
		access.BucketDay(entry.Timestamp), entry.ByteSize.Bytes())

	if err != nil {
		return errors.NewDataUnavailableError("volume_tracking", "failed to increment volume bucket").WithCause(err)
	}

	return nil
}

// DailyTotals returns the client's per-day totals for the trailing number
// of days, oldest first.
func (r *VolumeRepository) DailyTotals(ctx context.Context, tenantID, clientID uuid.UUID, days int, now time.Time) ([]access.DayVolume, error) {
	since := access.BucketDay(now).AddDate(0, 0, -days)

	rows, err := r.db.Query(ctx, `
		SELECT day, SUM(total_bytes), SUM(request_count)
		FROM volume_tracking
		WHERE tenant_id = $1 AND client_id = $2 AND day >= $3
		GROUP BY day
		ORDER BY day ASC
	`, tenantID, clientID, since)
	if err != nil {
		return nil, errors.NewDataUnavailableError("volume_tracking", "failed to query daily totals").WithCause(err)
	}
	defer rows.Close()

	var totals []access.DayVolume
	for rows.Next() {
		var dv access.DayVolume
		var totalBytes int64
		if err := rows.Scan(&dv.Day, &totalBytes, &dv.Requests); err != nil {
			return nil, errors.NewDataUnavailableError("volume_tracking", "failed to scan daily total").WithCause(err)
		}
		if err := dv.TotalBytes.Scan(totalBytes); err != nil {
			return nil, err
		}
		totals = append(totals, dv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDataUnavailableError("volume_tracking", "daily total iteration failed").WithCause(err)
	}

	return totals, nil
}
