package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func TestRedisCache_BasicOperations(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cache, err := NewRedisCache(client, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "test:key", "test_value", time.Hour))

		result, err := cache.Get(ctx, "test:key")
		require.NoError(t, err)
		assert.Equal(t, "test_value", result)
	})

	t.Run("get missing key", func(t *testing.T) {
		_, err := cache.Get(ctx, "no_such_key")
		require.Error(t, err)

		var notFound ErrCacheKeyNotFound
		assert.ErrorAs(t, err, &notFound)
		assert.Equal(t, "no_such_key", notFound.Key)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "test:delete", "v", time.Hour))
		require.NoError(t, cache.Delete(ctx, "test:delete"))

		_, err := cache.Get(ctx, "test:delete")
		var notFound ErrCacheKeyNotFound
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("setnx honors existing key", func(t *testing.T) {
		ok, err := cache.SetNX(ctx, "test:nx", "first", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = cache.SetNX(ctx, "test:nx", "second", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		result, err := cache.Get(ctx, "test:nx")
		require.NoError(t, err)
		assert.Equal(t, "first", result)
	})

	t.Run("json round trip", func(t *testing.T) {
		type payload struct {
			ID   int      `json:"id"`
			Tags []string `json:"tags"`
		}
		original := payload{ID: 7, Tags: []string{"a", "b"}}

		require.NoError(t, cache.SetJSON(ctx, "test:json", original, time.Hour))

		var got payload
		require.NoError(t, cache.GetJSON(ctx, "test:json", &got))
		assert.Equal(t, original, got)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "test:ttl", "v", time.Second))

		mr.FastForward(1100 * time.Millisecond)

		_, err := cache.Get(ctx, "test:ttl")
		var notFound ErrCacheKeyNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestRateCounter_CheckDoesNotReserve(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	counter, err := NewRedisRateCounter(client, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	key := RateKey(uuid.New(), uuid.New(), "profile")

	// Checking repeatedly must not grow the window.
	for i := 0; i < 5; i++ {
		wc, err := counter.Check(ctx, key, time.Minute, now)
		require.NoError(t, err)
		assert.Equal(t, int64(0), wc.Count)
	}
}

func TestRateCounter_WindowSlides(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	counter, err := NewRedisRateCounter(client, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	base := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	key := RateKey(uuid.New(), uuid.New(), "behavioral")
	window := time.Minute

	// Three commits spaced 10s apart.
	for i := 0; i < 3; i++ {
		require.NoError(t, counter.Commit(ctx, key, window, base.Add(time.Duration(i)*10*time.Second)))
	}

	wc, err := counter.Check(ctx, key, window, base.Add(25*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(3), wc.Count)
	assert.Equal(t, base, wc.OldestAt.UTC())

	// 65s after the first commit, only the later two remain in window.
	wc, err = counter.Check(ctx, key, window, base.Add(65*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), wc.Count)
	assert.Equal(t, base.Add(10*time.Second), wc.OldestAt.UTC())

	// Far future: the window is empty again.
	wc, err = counter.Check(ctx, key, window, base.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), wc.Count)
	assert.True(t, wc.OldestAt.IsZero())
}

func TestRateCounter_Reset(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	counter, err := NewRedisRateCounter(client, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	key := RateKey(uuid.New(), uuid.New(), "assessment")

	require.NoError(t, counter.Commit(ctx, key, time.Minute, now))
	require.NoError(t, counter.Reset(ctx, key))

	wc, err := counter.Check(ctx, key, time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wc.Count)
}

func TestVolumeTracker_RollingSum(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	tracker, err := NewRedisVolumeTracker(client, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	key := RateKey(uuid.New(), uuid.New(), "profile")
	window := 24 * time.Hour

	require.NoError(t, tracker.Commit(ctx, key, uuid.New(), 1_000_000, window, base))
	require.NoError(t, tracker.Commit(ctx, key, uuid.New(), 2_500_000, window, base.Add(2*time.Hour)))
	require.NoError(t, tracker.Commit(ctx, key, uuid.New(), 500_000, window, base.Add(4*time.Hour)))

	vol, err := tracker.Current(ctx, key, window, base.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4_000_000), vol.TotalBytes)
	assert.Equal(t, int64(3), vol.RequestCount)
	assert.Equal(t, base, vol.OldestAt.UTC())

	// 25h after the first commit it has aged out of the window.
	vol, err = tracker.Current(ctx, key, window, base.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3_000_000), vol.TotalBytes)
	assert.Equal(t, int64(2), vol.RequestCount)
	assert.Equal(t, base.Add(2*time.Hour), vol.OldestAt.UTC())
}

func TestVolumeTracker_RejectsNegativeBytes(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	tracker, err := NewRedisVolumeTracker(client, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = tracker.Commit(context.Background(), "k", uuid.New(), -1, time.Hour, time.Now())
	assert.Error(t, err)
}

func TestSessionRegistry_Lifecycle(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	registry, err := NewRedisSessionRegistry(client, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tenantID, clientID, actorID := uuid.New(), uuid.New(), uuid.New()

	t.Run("count tracks distinct sessions", func(t *testing.T) {
		require.NoError(t, registry.Touch(ctx, tenantID, clientID, actorID, "sess-a", now))
		require.NoError(t, registry.Touch(ctx, tenantID, clientID, actorID, "sess-b", now.Add(time.Minute)))
		require.NoError(t, registry.Touch(ctx, tenantID, clientID, actorID, "sess-a", now.Add(2*time.Minute)))

		count, err := registry.ActiveCount(ctx, tenantID, clientID, actorID, now.Add(3*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("start survives later touches", func(t *testing.T) {
		start, ok, err := registry.SessionStart(ctx, tenantID, clientID, actorID, "sess-a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, now, start.UTC())
	})

	t.Run("unknown session has no start", func(t *testing.T) {
		_, ok, err := registry.SessionStart(ctx, tenantID, clientID, actorID, "never-seen")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("idle sessions drop out", func(t *testing.T) {
		count, err := registry.ActiveCount(ctx, tenantID, clientID, actorID, now.Add(SessionIdleTimeout+5*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}

func TestSessionRegistry_RevokeAll(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	registry, err := NewRedisSessionRegistry(client, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tenantID, clientID := uuid.New(), uuid.New()
	actorA, actorB := uuid.New(), uuid.New()

	require.NoError(t, registry.Touch(ctx, tenantID, clientID, actorA, "a-1", now))
	require.NoError(t, registry.Touch(ctx, tenantID, clientID, actorA, "a-2", now))
	require.NoError(t, registry.Touch(ctx, tenantID, clientID, actorB, "b-1", now))

	revoked, err := registry.RevokeAll(ctx, tenantID, clientID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), revoked)

	count, err := registry.ActiveCount(ctx, tenantID, clientID, actorA, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = registry.ActiveCount(ctx, tenantID, clientID, actorB, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// The revoked sessions are fully forgotten, including their starts.
	_, ok, err := registry.SessionStart(ctx, tenantID, clientID, actorA, "a-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewStores(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	stores, err := NewStores(client, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NotNil(t, stores.Cache)
	assert.NotNil(t, stores.Rates)
	assert.NotNil(t, stores.Volumes)
	assert.NotNil(t, stores.Sessions)
	assert.Same(t, client, stores.Client())
}
