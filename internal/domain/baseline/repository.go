package baseline

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists baseline versions. Versions are append-only per
// client; Latest returns the highest one.
type Repository interface {
	// Latest loads the client's newest baseline version. Returns
	// errors.ErrBaselineNotFound when the client has no baseline yet.
	Latest(ctx context.Context, tenantID, clientID uuid.UUID) (*Baseline, error)

	// Save appends a new baseline version. Saving a version that is not
	// strictly greater than the stored one is a conflict.
	Save(ctx context.Context, b *Baseline) error
}
