package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisVolumeTracker tracks bytes retrieved over a rolling window. Each
// admitted request becomes one sorted-set member "<entryID>:<bytes>"
// scored by retrieval time in nanoseconds, so the rolling sum and the
// age of the oldest contributing entry are both exact.
type redisVolumeTracker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisVolumeTracker creates a rolling-window byte volume tracker.
func NewRedisVolumeTracker(client *redis.Client, logger *zap.Logger) (VolumeTracker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &redisVolumeTracker{
		client: client,
		logger: logger,
	}, nil
}

// Current sums the bytes retrieved inside the window without reserving
// anything.
func (r *redisVolumeTracker) Current(ctx context.Context, key string, window time.Duration, now time.Time) (WindowVolume, error) {
	redisKey := VolumeWindowPrefix + key
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart, 10))
	entriesCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, -1)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("volume window read failed",
			zap.String("key", key),
			zap.Error(err))
		return WindowVolume{}, fmt.Errorf("volume window read failed: %w", err)
	}

	vol := WindowVolume{}
	for i, entry := range entriesCmd.Val() {
		member, ok := entry.Member.(string)
		if !ok {
			continue
		}
		bytes, err := parseVolumeMember(member)
		if err != nil {
			r.logger.Warn("malformed volume entry dropped",
				zap.String("key", key),
				zap.String("member", member))
			continue
		}
		vol.TotalBytes += bytes
		vol.RequestCount++
		if i == 0 {
			vol.OldestAt = time.Unix(0, int64(entry.Score))
		}
	}

	return vol, nil
}

// Commit records the bytes retrieved by an admitted request.
func (r *redisVolumeTracker) Commit(ctx context.Context, key string, entryID uuid.UUID, bytes int64, window time.Duration, now time.Time) error {
	if bytes < 0 {
		return fmt.Errorf("volume commit rejects negative bytes: %d", bytes)
	}

	redisKey := VolumeWindowPrefix + key
	member := entryID.String() + ":" + strconv.FormatInt(bytes, 10)

	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	})
	pipe.Expire(ctx, redisKey, window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("volume window commit failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("volume window commit failed: %w", err)
	}

	return nil
}

// Reset clears the window for a key.
func (r *redisVolumeTracker) Reset(ctx context.Context, key string) error {
	redisKey := VolumeWindowPrefix + key

	if err := r.client.Del(ctx, redisKey).Err(); err != nil {
		r.logger.Error("volume window reset failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("volume window reset failed: %w", err)
	}

	return nil
}

// parseVolumeMember extracts the byte count from an "<entryID>:<bytes>"
// member.
func parseVolumeMember(member string) (int64, error) {
	idx := strings.LastIndexByte(member, ':')
	if idx < 0 || idx == len(member)-1 {
		return 0, fmt.Errorf("malformed volume member %q", member)
	}
	return strconv.ParseInt(member[idx+1:], 10, 64)
}
