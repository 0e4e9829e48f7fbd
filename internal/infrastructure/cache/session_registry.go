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

// redisSessionRegistry keeps live sessions in Redis so every gateway
// instance sees the same concurrent-session counts.
//
// Layout per (tenant, client, actor):
//
//	ldg:session:<t>:<c>:<a>        ZSET  sessionID -> last activity (ns)
//	ldg:session:start:<t>:<c>:<a>  ZSET  sessionID -> first seen (ns)
//	ldg:clientactors:<t>:<c>       SET   actor ids with live sessions
//
// The actor set lets RevokeAll sweep a client without scanning the
// keyspace.
type redisSessionRegistry struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisSessionRegistry creates the shared session registry.
func NewRedisSessionRegistry(client *redis.Client, logger *zap.Logger) (SessionRegistry, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &redisSessionRegistry{
		client: client,
		logger: logger,
	}, nil
}

// Touch marks the session alive at now, recording its start on first
// sight.
func (r *redisSessionRegistry) Touch(ctx context.Context, tenantID, clientID, actorID uuid.UUID, sessionID string, now time.Time) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	activityKey := sessionActivityKey(tenantID, clientID, actorID)
	startKey := sessionStartKey(tenantID, clientID, actorID)
	actorsKey := clientActorsKey(tenantID, clientID)

	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, activityKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: sessionID,
	})
	pipe.ZAddNX(ctx, startKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: sessionID,
	})
	pipe.SAdd(ctx, actorsKey, actorID.String())
	pipe.Expire(ctx, activityKey, SessionHardTTL)
	pipe.Expire(ctx, startKey, SessionHardTTL)
	pipe.Expire(ctx, actorsKey, SessionHardTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("session touch failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return fmt.Errorf("session touch failed: %w", err)
	}

	return nil
}

// ActiveCount returns the number of non-idle, non-revoked sessions for
// the actor.
func (r *redisSessionRegistry) ActiveCount(ctx context.Context, tenantID, clientID, actorID uuid.UUID, now time.Time) (int64, error) {
	activityKey := sessionActivityKey(tenantID, clientID, actorID)
	idleCutoff := now.Add(-SessionIdleTimeout).UnixNano()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, activityKey, "-inf", strconv.FormatInt(idleCutoff, 10))
	countCmd := pipe.ZCard(ctx, activityKey)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("session count failed", zap.Error(err))
		return 0, fmt.Errorf("session count failed: %w", err)
	}

	return countCmd.Val(), nil
}

// SessionStart returns when the session was first seen. ok is false for
// unknown sessions.
func (r *redisSessionRegistry) SessionStart(ctx context.Context, tenantID, clientID, actorID uuid.UUID, sessionID string) (time.Time, bool, error) {
	startKey := sessionStartKey(tenantID, clientID, actorID)

	score, err := r.client.ZScore(ctx, startKey, sessionID).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, false, nil
		}
		r.logger.Error("session start lookup failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return time.Time{}, false, fmt.Errorf("session start lookup failed: %w", err)
	}

	return time.Unix(0, int64(score)), true, nil
}

// RevokeAll drops every live session for the client across all its
// actors. Returns the number of sessions revoked.
func (r *redisSessionRegistry) RevokeAll(ctx context.Context, tenantID, clientID uuid.UUID) (int64, error) {
	actorsKey := clientActorsKey(tenantID, clientID)

	actors, err := r.client.SMembers(ctx, actorsKey).Result()
	if err != nil {
		r.logger.Error("session revoke sweep failed", zap.Error(err))
		return 0, fmt.Errorf("session revoke sweep failed: %w", err)
	}

	var revoked int64
	for _, actor := range actors {
		actorID, err := uuid.Parse(actor)
		if err != nil {
			continue
		}

		activityKey := sessionActivityKey(tenantID, clientID, actorID)
		startKey := sessionStartKey(tenantID, clientID, actorID)

		count, err := r.client.ZCard(ctx, activityKey).Result()
		if err != nil {
			return revoked, fmt.Errorf("session revoke count failed: %w", err)
		}

		if err := r.client.Del(ctx, activityKey, startKey).Err(); err != nil {
			return revoked, fmt.Errorf("session revoke delete failed: %w", err)
		}

		revoked += count
	}

	if err := r.client.Del(ctx, actorsKey).Err(); err != nil {
		return revoked, fmt.Errorf("session revoke cleanup failed: %w", err)
	}

	r.logger.Info("client sessions revoked",
		zap.String("tenant_id", tenantID.String()),
		zap.String("client_id", clientID.String()),
		zap.Int64("sessions", revoked))

	return revoked, nil
}

func sessionActivityKey(tenantID, clientID, actorID uuid.UUID) string {
	return SessionPrefix + tenantID.String() + ":" + clientID.String() + ":" + actorID.String()
}

func sessionStartKey(tenantID, clientID, actorID uuid.UUID) string {
	return SessionStartPrefix + tenantID.String() + ":" + clientID.String() + ":" + actorID.String()
}

func clientActorsKey(tenantID, clientID uuid.UUID) string {
	return ClientActorsPrefix + tenantID.String() + ":" + clientID.String()
}
