package reputation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists per-client reputation records.
type Repository interface {
	// Get loads a client's reputation record. Returns
	// errors.ErrClientNotFound when the client has never been seen.
	Get(ctx context.Context, tenantID, clientID uuid.UUID) (*Client, error)

	// Save upserts the record. Concurrent saves for the same client must
	// not interleave partial states.
	Save(ctx context.Context, client *Client) error

	// ListViolationFree returns clients in the tenant whose last violation
	// is older than the given time. Feeds the daily recovery sweep.
	ListViolationFree(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]*Client, error)
}
