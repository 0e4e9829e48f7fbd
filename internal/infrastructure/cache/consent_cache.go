package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/domain/consent"
)

// ConsentCache is a read-through decorator over a consent oracle.
// Grants are cached longer than denials so a revocation propagates
// within a minute while the common allowed path stays cheap.
//
// Oracle failures fall through to the caller untouched. Consent is a
// compliance decision, so a stale cached denial is acceptable but a
// fabricated grant is not.
type ConsentCache struct {
	client *redis.Client
	next   consent.Oracle
	logger *zap.Logger

	grantTTL  time.Duration
	denialTTL time.Duration
}

// NewConsentCache wraps oracle with a Redis-backed cache.
func NewConsentCache(client *redis.Client, oracle consent.Oracle, logger *zap.Logger) (*ConsentCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("consent oracle is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &ConsentCache{
		client:    client,
		next:      oracle,
		logger:    logger,
		grantTTL:  ConsentGrantTTL,
		denialTTL: ConsentDenialTTL,
	}, nil
}

// HasConsent answers from cache when possible, otherwise asks the
// wrapped oracle and caches its answer.
func (c *ConsentCache) HasConsent(ctx context.Context, tenantID, actorID uuid.UUID, purpose consent.Purpose) (bool, error) {
	key := c.consentKey(tenantID, actorID, purpose)

	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return val == "1", nil
	}
	if err != redis.Nil {
		// Degraded cache is not a consent denial. Ask the oracle.
		c.logger.Warn("consent cache read failed",
			zap.String("key", key),
			zap.Error(err))
	}

	granted, err := c.next.HasConsent(ctx, tenantID, actorID, purpose)
	if err != nil {
		return false, err
	}

	cached, ttl := "0", c.denialTTL
	if granted {
		cached, ttl = "1", c.grantTTL
	}
	if err := c.client.Set(ctx, key, cached, ttl).Err(); err != nil {
		c.logger.Warn("consent cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}

	return granted, nil
}

// Invalidate drops the cached answer for one (actor, purpose) pair.
// Called when a revocation event arrives so the shorter denial TTL
// does not have to be waited out.
func (c *ConsentCache) Invalidate(ctx context.Context, tenantID, actorID uuid.UUID, purpose consent.Purpose) error {
	key := c.consentKey(tenantID, actorID, purpose)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("consent cache invalidate failed: %w", err)
	}

	return nil
}

func (c *ConsentCache) consentKey(tenantID, actorID uuid.UUID, purpose consent.Purpose) string {
	return fmt.Sprintf("%s%s:%s:%s", ConsentPrefix, tenantID, actorID, purpose)
}
