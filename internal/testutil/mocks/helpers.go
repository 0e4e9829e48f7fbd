package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MatcherFunc is a custom argument matcher function
type MatcherFunc func(interface{}) bool

// Match creates a custom matcher for mock arguments
func Match(fn MatcherFunc) interface{} {
	return mock.MatchedBy(func(arg interface{}) bool {
		return fn(arg)
	})
}

// AnyContext matches any context.Context
func AnyContext() interface{} {
	return mock.MatchedBy(func(ctx context.Context) bool {
		return ctx != nil
	})
}

// AnyUUID matches any non-nil UUID
func AnyUUID() interface{} {
	return mock.MatchedBy(func(id uuid.UUID) bool {
		return id != uuid.Nil
	})
}

// AnyTime matches any time.Time
func AnyTime() interface{} {
	return Match(func(arg interface{}) bool {
		_, ok := arg.(time.Time)
		return ok
	})
}

// TimeWithin matches a time within a duration of expected
func TimeWithin(expected time.Time, delta time.Duration) interface{} {
	return Match(func(arg interface{}) bool {
		t, ok := arg.(time.Time)
		if !ok {
			return false
		}
		diff := t.Sub(expected)
		if diff < 0 {
			diff = -diff
		}
		return diff <= delta
	})
}
