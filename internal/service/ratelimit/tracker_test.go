package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/learnershield/learner-data-gateway/internal/domain/access"
	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/domain/limits"
	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
	"github.com/learnershield/learner-data-gateway/internal/domain/violation"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/cache"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
	"github.com/learnershield/learner-data-gateway/internal/testutil/mocks"
)

func testLimitsConfig() *config.LimitsConfig {
	return &config.LimitsConfig{
		WindowMinutes:         1,
		BurstAllowance:        0,
		MaxConcurrentSessions: 2,
		RequestsPerMinute: map[string]int{
			"profile":    15,
			"aggregated": 100,
		},
		DailyVolumeMB: map[string]int{
			"profile":    50,
			"aggregated": 100,
		},
	}
}

func setupTracker(t *testing.T) (*Tracker, *mocks.LimitsRepository, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	stores, err := cache.NewStores(client, zaptest.NewLogger(t))
	require.NoError(t, err)

	overrides := &mocks.LimitsRepository{}
	tracker, err := NewTracker(stores.Rates, stores.Volumes, stores.Sessions,
		overrides, testLimitsConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return tracker, overrides, cleanup
}

func noOverrides(overrides *mocks.LimitsRepository) {
	overrides.On("Override", mocks.AnyContext(), mocks.AnyUUID(),
		mock.Anything, mock.Anything).Return(nil, errors.ErrLimitsNotFound)
}

func newRequest(category access.DataCategory, bytes int64, now time.Time) access.Request {
	return access.Request{
		TenantID:       uuid.New(),
		ClientID:       uuid.New(),
		ActorID:        uuid.New(),
		Category:       category,
		EstimatedBytes: bytes,
		Now:            now,
	}
}

func commitRequest(t *testing.T, tracker *Tracker, req access.Request, lims limits.Limits) {
	t.Helper()
	entry, err := req.ToEntry(true)
	require.NoError(t, err)
	require.NoError(t, tracker.Commit(context.Background(), entry, lims))
}

func TestTracker_WithinLimitsAllows(t *testing.T) {
	tracker, overrides, cleanup := setupTracker(t)
	defer cleanup()
	noOverrides(overrides)

	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	req := newRequest(access.CategoryProfile, 1024, now)

	// Five 1KB profile reads inside one minute against a 15/min limit.
	for i := 0; i < 5; i++ {
		req.Now = now.Add(time.Duration(i) * 10 * time.Second)
		decision, err := tracker.CheckAndReserve(context.Background(), req, reputation.TierLow)
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "request %d should be allowed", i+1)

		commitRequest(t, tracker, req, decision.Limits)
	}
}

func TestTracker_RateBreachDeniesWithRetryHint(t *testing.T) {
	tracker, overrides, cleanup := setupTracker(t)
	defer cleanup()
	noOverrides(overrides)

	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	req := newRequest(access.CategoryProfile, 1024, now)

	for i := 0; i < 15; i++ {
		req.Now = now.Add(time.Duration(i) * time.Second)
		decision, err := tracker.CheckAndReserve(context.Background(), req, reputation.TierLow)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		commitRequest(t, tracker, req, decision.Limits)
	}

	req.Now = now.Add(16 * time.Second)
	decision, err := tracker.CheckAndReserve(context.Background(), req, reputation.TierLow)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, CheckRate, decision.Check)
	assert.EqualValues(t, 15, decision.CurrentCount)
	assert.GreaterOrEqual(t, decision.RetryAfter, time.Minute)
}

func TestTracker_VolumeBreachDeniesWithHourFloor(t *testing.T) {
	tracker, overrides, cleanup := setupTracker(t)
	defer cleanup()
	noOverrides(overrides)

	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	req := newRequest(access.CategoryAggregated, 95*1024*1024, now)

	decision, err := tracker.CheckAndReserve(context.Background(), req, reputation.TierLow)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	commitRequest(t, tracker, req, decision.Limits)

	// 95MB already spent out of 100MB; a 15MB follow-up would overrun.
	req.Now = now.Add(time.Minute)
	req.EstimatedBytes = 15 * 1024 * 1024

	decision, err = tracker.CheckAndReserve(context.Background(), req, reputation.TierLow)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, CheckVolume, decision.Check)
	assert.GreaterOrEqual(t, decision.RetryAfter, time.Hour)
}

func TestTracker_ConcurrentSessionCap(t *testing.T) {
	tracker, overrides, cleanup := setupTracker(t)
	defer cleanup()
	noOverrides(overrides)

	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	req := newRequest(access.CategoryProfile, 1024, now)

	for i, session := range []string{"sess-1", "sess-2"} {
		req.SessionID = session
		req.Now = now.Add(time.Duration(i) * time.Second)

		decision, err := tracker.CheckAndReserve(context.Background(), req, reputation.TierLow)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		commitRequest(t, tracker, req, decision.Limits)
	}

	// A third session exceeds the cap of two.
	req.SessionID = "sess-3"
	req.Now = now.Add(5 * time.Second)
	decision, err := tracker.CheckAndReserve(context.Background(), req, reputation.TierLow)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, CheckSessions, decision.Check)
	assert.EqualValues(t, 2, decision.CurrentCount)

	// Activity on an already-registered session still passes.
	req.SessionID = "sess-1"
	decision, err = tracker.CheckAndReserve(context.Background(), req, reputation.TierLow)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestTracker_Resolve(t *testing.T) {
	tracker, overrides, cleanup := setupTracker(t)
	defer cleanup()

	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("tier scaling squeezes the envelope", func(t *testing.T) {
		overrides.On("Override", mocks.AnyContext(), mocks.AnyUUID(),
			access.CategoryProfile, reputation.TierCritical).Return(nil, errors.ErrLimitsNotFound).Once()

		lims := tracker.Resolve(context.Background(), newRequest(access.CategoryProfile, 0, now), reputation.TierCritical)

		assert.Equal(t, 1, lims.RequestsPerMinute)
		assert.Equal(t, 1, lims.MaxConcurrentSessions)
		assert.EqualValues(t, 50*1024*1024/10, lims.DailyVolume.Bytes())
	})

	t.Run("unconfigured category falls back conservatively", func(t *testing.T) {
		overrides.On("Override", mocks.AnyContext(), mocks.AnyUUID(),
			access.CategoryBehavioral, reputation.TierLow).Return(nil, errors.ErrLimitsNotFound).Once()

		lims := tracker.Resolve(context.Background(), newRequest(access.CategoryBehavioral, 0, now), reputation.TierLow)

		assert.Equal(t, fallbackRequestsPerMinute, lims.RequestsPerMinute)
		assert.EqualValues(t, int64(fallbackDailyVolumeMB)*1024*1024, lims.DailyVolume.Bytes())
	})

	t.Run("tenant override wins", func(t *testing.T) {
		pinned := &limits.Limits{
			Category:              access.CategoryProfile,
			Tier:                  reputation.TierLow,
			RequestsPerMinute:     3,
			WindowMinutes:         1,
			MaxConcurrentSessions: 1,
		}
		overrides.On("Override", mocks.AnyContext(), mocks.AnyUUID(),
			access.CategoryProfile, reputation.TierLow).Return(pinned, nil).Once()

		lims := tracker.Resolve(context.Background(), newRequest(access.CategoryProfile, 0, now), reputation.TierLow)
		assert.Equal(t, 3, lims.RequestsPerMinute)
	})

	t.Run("unreachable override store degrades to critical envelope", func(t *testing.T) {
		overrides.On("Override", mocks.AnyContext(), mocks.AnyUUID(),
			access.CategoryProfile, reputation.TierLow).
			Return(nil, errors.NewInternalError("connection refused")).Once()

		lims := tracker.Resolve(context.Background(), newRequest(access.CategoryProfile, 0, now), reputation.TierLow)

		assert.Equal(t, reputation.TierCritical, lims.Tier)
		assert.Equal(t, 1, lims.RequestsPerMinute)
	})
}

func TestCheck_ViolationType(t *testing.T) {
	assert.Equal(t, violation.TypeRateLimit, CheckRate.ViolationType())
	assert.Equal(t, violation.TypeRateLimit, CheckSessions.ViolationType())
	assert.Equal(t, violation.TypeVolumeLimit, CheckVolume.ViolationType())
}
