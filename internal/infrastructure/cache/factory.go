package cache

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores bundles the Redis-backed coordination primitives that share one
// client connection pool.
type Stores struct {
	Cache    Cache
	Rates    RateCounter
	Volumes  VolumeTracker
	Sessions SessionRegistry

	client *redis.Client
}

// NewStores wires every store onto the given client.
func NewStores(client *redis.Client, logger *zap.Logger) (*Stores, error) {
	generic, err := NewRedisCache(client, logger)
	if err != nil {
		return nil, err
	}

	rates, err := NewRedisRateCounter(client, logger)
	if err != nil {
		return nil, err
	}

	volumes, err := NewRedisVolumeTracker(client, logger)
	if err != nil {
		return nil, err
	}

	sessions, err := NewRedisSessionRegistry(client, logger)
	if err != nil {
		return nil, err
	}

	return &Stores{
		Cache:    generic,
		Rates:    rates,
		Volumes:  volumes,
		Sessions: sessions,
		client:   client,
	}, nil
}

// Client exposes the underlying connection for decorators that need
// their own key schemas.
func (s *Stores) Client() *redis.Client {
	return s.client
}

// Close releases the shared connection pool.
func (s *Stores) Close() error {
	return s.client.Close()
}
