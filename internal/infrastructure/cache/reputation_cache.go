package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/domain/reputation"
)

// ReputationCache is a read-through, write-through decorator over the
// durable reputation repository. The short TTL bounds how stale a hot
// client's score can get across gateway instances while keeping the
// database off the per-request path.
type ReputationCache struct {
	client *redis.Client
	next   reputation.Repository
	logger *zap.Logger
	ttl    time.Duration
}

// NewReputationCache wraps repo with a Redis-backed cache.
func NewReputationCache(client *redis.Client, repo reputation.Repository, logger *zap.Logger) (*ReputationCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("reputation repository is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &ReputationCache{
		client: client,
		next:   repo,
		logger: logger,
		ttl:    ReputationTTL,
	}, nil
}

// Get returns the cached client when fresh, otherwise loads from the
// repository and caches the result.
func (c *ReputationCache) Get(ctx context.Context, tenantID, clientID uuid.UUID) (*reputation.Client, error) {
	key := c.reputationKey(tenantID, clientID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		client, decodeErr := decodeClient(data)
		if decodeErr == nil {
			return client, nil
		}
		c.logger.Warn("cached reputation unreadable, reloading",
			zap.String("key", key),
			zap.Error(decodeErr))
	} else if err != redis.Nil {
		c.logger.Warn("reputation cache read failed",
			zap.String("key", key),
			zap.Error(err))
	}

	client, err := c.next.Get(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, client)
	return client, nil
}

// Save writes through to the repository, then refreshes the cache so
// the next read inside the TTL sees the new score.
func (c *ReputationCache) Save(ctx context.Context, client *reputation.Client) error {
	if err := c.next.Save(ctx, client); err != nil {
		return err
	}

	key := c.reputationKey(client.TenantID, client.ClientID)
	c.store(ctx, key, client)
	return nil
}

// ListViolationFree passes through. The recovery sweep runs off-path
// and does not need caching.
func (c *ReputationCache) ListViolationFree(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]*reputation.Client, error) {
	return c.next.ListViolationFree(ctx, tenantID, since)
}

func (c *ReputationCache) store(ctx context.Context, key string, client *reputation.Client) {
	data, err := encodeClient(client)
	if err != nil {
		c.logger.Warn("reputation cache encode failed",
			zap.String("key", key),
			zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("reputation cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (c *ReputationCache) reputationKey(tenantID, clientID uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s", ReputationPrefix, tenantID, clientID)
}

func encodeClient(client *reputation.Client) ([]byte, error) {
	return json.Marshal(client)
}

func decodeClient(data []byte) (*reputation.Client, error) {
	var client reputation.Client
	if err := json.Unmarshal(data, &client); err != nil {
		return nil, err
	}
	return &client, nil
}
