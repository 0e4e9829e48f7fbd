package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
)

// EntryBuilder builds access ledger entries for tests.
type EntryBuilder struct {
	tenantID         uuid.UUID
	clientID         uuid.UUID
	actorID          uuid.UUID
	category         access.DataCategory
	byteSize         int64
	succeeded        bool
	sessionID        string
	sourceNetwork    string
	agentFingerprint string
	timestamp        time.Time
}

// NewEntryBuilder creates an EntryBuilder with sensible defaults: a
// successful 50 KB profile read during business hours.
func NewEntryBuilder() *EntryBuilder {
	return &EntryBuilder{
		tenantID:  uuid.New(),
		clientID:  uuid.New(),
		actorID:   uuid.New(),
		category:  access.CategoryProfile,
		byteSize:  50 * 1024,
		succeeded: true,
		timestamp: time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC),
	}
}

// WithTenant sets the tenant
func (b *EntryBuilder) WithTenant(id uuid.UUID) *EntryBuilder {
	b.tenantID = id
	return b
}

// WithClient sets the client
func (b *EntryBuilder) WithClient(id uuid.UUID) *EntryBuilder {
	b.clientID = id
	return b
}

// WithActor sets the learner whose data is accessed
func (b *EntryBuilder) WithActor(id uuid.UUID) *EntryBuilder {
	b.actorID = id
	return b
}

// WithCategory sets the data category
func (b *EntryBuilder) WithCategory(category access.DataCategory) *EntryBuilder {
	b.category = category
	return b
}

// WithBytes sets the transfer size
func (b *EntryBuilder) WithBytes(n int64) *EntryBuilder {
	b.byteSize = n
	return b
}

// Failed marks the entry as a denied request
func (b *EntryBuilder) Failed() *EntryBuilder {
	b.succeeded = false
	return b
}

// WithSession sets the session identifier
func (b *EntryBuilder) WithSession(sessionID string) *EntryBuilder {
	b.sessionID = sessionID
	return b
}

// WithOrigin sets the source network and agent fingerprint
func (b *EntryBuilder) WithOrigin(network, agent string) *EntryBuilder {
	b.sourceNetwork = network
	b.agentFingerprint = agent
	return b
}

// At sets the entry timestamp
func (b *EntryBuilder) At(t time.Time) *EntryBuilder {
	b.timestamp = t
	return b
}

// Build creates the entry
func (b *EntryBuilder) Build(t *testing.T) *access.Entry {
	t.Helper()

	entry, err := access.NewEntry(b.tenantID, b.clientID, b.actorID,
		b.category, b.byteSize, b.succeeded, b.timestamp)
	require.NoError(t, err)

	if b.sessionID != "" {
		entry.WithSession(b.sessionID)
	}
	if b.sourceNetwork != "" || b.agentFingerprint != "" {
		entry.WithOrigin(b.sourceNetwork, b.agentFingerprint)
	}

	return entry
}

// BuildSeries creates n entries spaced interval apart, starting at the
// builder's timestamp. Each entry gets a fresh ID; everything else is
// shared, which makes the series read like one client working steadily.
func (b *EntryBuilder) BuildSeries(t *testing.T, n int, interval time.Duration) []*access.Entry {
	t.Helper()

	entries := make([]*access.Entry, 0, n)
	for i := 0; i < n; i++ {
		at := b.timestamp.Add(time.Duration(i) * interval)
		entry := (&EntryBuilder{
			tenantID:         b.tenantID,
			clientID:         b.clientID,
			actorID:          b.actorID,
			category:         b.category,
			byteSize:         b.byteSize,
			succeeded:        b.succeeded,
			sessionID:        b.sessionID,
			sourceNetwork:    b.sourceNetwork,
			agentFingerprint: b.agentFingerprint,
			timestamp:        at,
		}).Build(t)
		entries = append(entries, entry)
	}

	return entries
}
