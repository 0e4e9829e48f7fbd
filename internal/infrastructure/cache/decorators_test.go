package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/learnershield/learner-data-gateway/internal/domain/consent"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
)

type stubOracle struct {
	granted bool
	err     error
	calls   int
}

func (s *stubOracle) HasConsent(ctx context.Context, tenantID, actorID uuid.UUID, purpose consent.Purpose) (bool, error) {
	s.calls++
	return s.granted, s.err
}

func TestConsentCache_CachesGrants(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	oracle := &stubOracle{granted: true}
	cached, err := NewConsentCache(client, oracle, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	tenantID, actorID := uuid.New(), uuid.New()

	granted, err := cached.HasConsent(ctx, tenantID, actorID, consent.PurposeAssessment)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, 1, oracle.calls)

	// Second lookup is served from cache.
	granted, err = cached.HasConsent(ctx, tenantID, actorID, consent.PurposeAssessment)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, 1, oracle.calls)
}

func TestConsentCache_DenialExpiresSooner(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	oracle := &stubOracle{granted: false}
	cached, err := NewConsentCache(client, oracle, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	tenantID, actorID := uuid.New(), uuid.New()

	granted, err := cached.HasConsent(ctx, tenantID, actorID, consent.PurposeResearch)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, 1, oracle.calls)

	granted, err = cached.HasConsent(ctx, tenantID, actorID, consent.PurposeResearch)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, 1, oracle.calls)

	// Past the denial TTL the oracle is asked again.
	mr.FastForward(ConsentDenialTTL + time.Second)

	oracle.granted = true
	granted, err = cached.HasConsent(ctx, tenantID, actorID, consent.PurposeResearch)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, 2, oracle.calls)
}

func TestConsentCache_Invalidate(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	oracle := &stubOracle{granted: true}
	cached, err := NewConsentCache(client, oracle, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	tenantID, actorID := uuid.New(), uuid.New()

	_, err = cached.HasConsent(ctx, tenantID, actorID, consent.PurposeInstruction)
	require.NoError(t, err)
	require.NoError(t, cached.Invalidate(ctx, tenantID, actorID, consent.PurposeInstruction))

	_, err = cached.HasConsent(ctx, tenantID, actorID, consent.PurposeInstruction)
	require.NoError(t, err)
	assert.Equal(t, 2, oracle.calls)
}

type stubReputationRepo struct {
	clients map[uuid.UUID]*reputation.Client
	gets    int
	saves   int
}

func newStubReputationRepo() *stubReputationRepo {
	return &stubReputationRepo{clients: make(map[uuid.UUID]*reputation.Client)}
}

func (s *stubReputationRepo) Get(ctx context.Context, tenantID, clientID uuid.UUID) (*reputation.Client, error) {
	s.gets++
	client, ok := s.clients[clientID]
	if !ok {
		return nil, errors.ErrClientNotFound
	}
	return client, nil
}

func (s *stubReputationRepo) Save(ctx context.Context, client *reputation.Client) error {
	s.saves++
	s.clients[client.ClientID] = client
	return nil
}

func (s *stubReputationRepo) ListViolationFree(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]*reputation.Client, error) {
	out := make([]*reputation.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out, nil
}

func TestReputationCache_ReadThrough(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	repo := newStubReputationRepo()
	cached, err := NewReputationCache(client, repo, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tenantID, clientID := uuid.New(), uuid.New()

	record, err := reputation.NewClient(tenantID, clientID, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, record))

	got, err := cached.Get(ctx, tenantID, clientID)
	require.NoError(t, err)
	assert.Equal(t, clientID, got.ClientID)
	assert.Equal(t, 1, repo.gets)

	// Within the TTL the repository is not consulted again.
	got, err = cached.Get(ctx, tenantID, clientID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Score.Value())
	assert.Equal(t, 1, repo.gets)
}

func TestReputationCache_MissPropagates(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	repo := newStubReputationRepo()
	cached, err := NewReputationCache(client, repo, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = cached.Get(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, errors.ErrClientNotFound)
}

func TestReputationCache_SaveRefreshesCache(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	repo := newStubReputationRepo()
	cached, err := NewReputationCache(client, repo, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tenantID, clientID := uuid.New(), uuid.New()

	record, err := reputation.NewClient(tenantID, clientID, now)
	require.NoError(t, err)
	record.RecordSuccess(now)

	require.NoError(t, cached.Save(ctx, record))
	assert.Equal(t, 1, repo.saves)

	got, err := cached.Get(ctx, tenantID, clientID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TotalRequests)
	assert.Equal(t, 0, repo.gets)
}
