package violation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists violations and anomaly records. Both are immutable
// once written.
type Repository interface {
	// RecordViolation appends a violation.
	RecordViolation(ctx context.Context, v *Violation) error

	// RecordAnomaly appends an anomaly record.
	RecordAnomaly(ctx context.Context, record *AnomalyRecord) error

	// CountByClientSince returns how many violations the client accrued
	// since the given time.
	CountByClientSince(ctx context.Context, tenantID, clientID uuid.UUID, since time.Time) (int, error)

	// ListByTenantSince returns all violations in the tenant since the
	// given time, newest first. Feeds the coordinated-attack detector.
	ListByTenantSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]*Violation, error)
}
