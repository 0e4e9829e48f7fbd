package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Key prefixes for the gateway's Redis keyspace.
const (
	RateWindowPrefix   = "ldg:rate:"
	VolumeWindowPrefix = "ldg:volume:"
	SessionPrefix      = "ldg:session:"
	SessionStartPrefix = "ldg:session:start:"
	ClientActorsPrefix = "ldg:clientactors:"
	ReputationPrefix   = "ldg:reputation:"
	ConsentPrefix      = "ldg:consent:"
)

// TTLs for cached state. Counter keys outlive their window slightly so a
// denied request can still compute its retry hint from the oldest entry.
const (
	ReputationTTL      = 2 * time.Minute
	ConsentGrantTTL    = 15 * time.Minute
	ConsentDenialTTL   = 1 * time.Minute
	SessionIdleTimeout = 30 * time.Minute
	SessionHardTTL     = 12 * time.Hour
)

// Cache is a minimal string/JSON cache used by the read-through layers.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Close() error
}

// WindowCount is a point-in-time view of a sliding request window.
type WindowCount struct {
	// Count is the number of committed requests currently inside the
	// window.
	Count int64
	// OldestAt is the timestamp of the oldest in-window request; zero
	// when the window is empty. A denied caller waits until this entry
	// ages out.
	OldestAt time.Time
}

// RateCounter tracks committed request timestamps per key in a sliding
// window. Check never reserves capacity; the caller commits only after the
// full policy decision allows the request.
type RateCounter interface {
	// Check returns the current window state without mutating it.
	Check(ctx context.Context, key string, window time.Duration, now time.Time) (WindowCount, error)

	// Commit records one allowed request at now.
	Commit(ctx context.Context, key string, window time.Duration, now time.Time) error

	// Reset clears the window. Used by tests and manual remediation.
	Reset(ctx context.Context, key string) error
}

// WindowVolume is a point-in-time view of a rolling byte-volume window.
type WindowVolume struct {
	TotalBytes   int64
	RequestCount int64
	// OldestAt is the timestamp of the oldest contributing entry; zero
	// when the window is empty.
	OldestAt time.Time
}

// VolumeTracker tracks committed byte volumes per key in a rolling window.
// Same check/commit split as RateCounter.
type VolumeTracker interface {
	Current(ctx context.Context, key string, window time.Duration, now time.Time) (WindowVolume, error)
	Commit(ctx context.Context, key string, entryID uuid.UUID, bytes int64, window time.Duration, now time.Time) error
	Reset(ctx context.Context, key string) error
}

// SessionRegistry tracks live sessions per (tenant, client, actor) so the
// concurrent-session limit and the automated revocation response have a
// shared source of truth.
type SessionRegistry interface {
	// Touch marks the session alive at now, recording its start on first
	// sight.
	Touch(ctx context.Context, tenantID, clientID, actorID uuid.UUID, sessionID string, now time.Time) error

	// ActiveCount returns the number of non-idle, non-revoked sessions
	// for the actor.
	ActiveCount(ctx context.Context, tenantID, clientID, actorID uuid.UUID, now time.Time) (int64, error)

	// SessionStart returns when the session was first seen. ok is false
	// for unknown sessions.
	SessionStart(ctx context.Context, tenantID, clientID, actorID uuid.UUID, sessionID string) (time.Time, bool, error)

	// RevokeAll drops every live session for the client across all its
	// actors. Returns the number of sessions revoked.
	RevokeAll(ctx context.Context, tenantID, clientID uuid.UUID) (int64, error)
}

// ErrCacheKeyNotFound indicates a cache miss.
type ErrCacheKeyNotFound struct {
	Key string
}

func (e ErrCacheKeyNotFound) Error() string {
	return fmt.Sprintf("cache key not found: %s", e.Key)
}

// RateKey builds the counter key for one (tenant, client, category) tuple.
func RateKey(tenantID, clientID uuid.UUID, category string) string {
	return fmt.Sprintf("%s:%s:%s", tenantID, clientID, category)
}
