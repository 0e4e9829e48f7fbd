package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisRateCounter counts requests in a sliding window backed by a
// Redis sorted set. Members are scored by request time in nanoseconds
// so the window boundary is exact.
//
// Check only reads the window and never reserves a slot. Commit adds
// the member after the caller has decided to admit the request, so a
// denied request leaves no trace in the counter.
type redisRateCounter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisRateCounter creates a sliding-window request counter.
func NewRedisRateCounter(client *redis.Client, logger *zap.Logger) (RateCounter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &redisRateCounter{
		client: client,
		logger: logger,
	}, nil
}

// Check reports the current window count without admitting the request.
func (r *redisRateCounter) Check(ctx context.Context, key string, window time.Duration, now time.Time) (WindowCount, error) {
	redisKey := RateWindowPrefix + key
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("rate window check failed",
			zap.String("key", key),
			zap.Error(err))
		return WindowCount{}, fmt.Errorf("rate window check failed: %w", err)
	}

	wc := WindowCount{Count: countCmd.Val()}
	if entries := oldestCmd.Val(); len(entries) > 0 {
		wc.OldestAt = time.Unix(0, int64(entries[0].Score))
	}

	return wc, nil
}

// Commit records an admitted request in the window.
func (r *redisRateCounter) Commit(ctx context.Context, key string, window time.Duration, now time.Time) error {
	redisKey := RateWindowPrefix + key

	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.New().String(),
	})
	pipe.Expire(ctx, redisKey, window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("rate window commit failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("rate window commit failed: %w", err)
	}

	return nil
}

// Reset clears the window for a key.
func (r *redisRateCounter) Reset(ctx context.Context, key string) error {
	redisKey := RateWindowPrefix + key

	if err := r.client.Del(ctx, redisKey).Err(); err != nil {
		r.logger.Error("rate window reset failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("rate window reset failed: %w", err)
	}

	return nil
}
