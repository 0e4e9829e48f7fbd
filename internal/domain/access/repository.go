package access

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the append-only access ledger. Reads are point-in-time
// window queries; there is no update or delete.
type Repository interface {
	// Record appends one entry to the ledger.
	Record(ctx context.Context, entry *Entry) error

	// ListByClient returns a client's entries with timestamps in
	// [from, to), ordered oldest first.
	ListByClient(ctx context.Context, tenantID, clientID uuid.UUID, from, to time.Time) ([]*Entry, error)

	// CountTenantActors returns the number of distinct actors that appear
	// in the tenant's ledger since the given time. Used as the population
	// denominator for enumeration coverage.
	CountTenantActors(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error)

	// ActiveClients returns the distinct clients with ledger activity in
	// the tenant since the given time.
	ActiveClients(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]uuid.UUID, error)

	// ActiveTenants returns the distinct tenants with ledger activity
	// since the given time. Drives the out-of-band maintenance sweeps.
	ActiveTenants(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}
