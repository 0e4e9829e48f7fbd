package auditlog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/learnershield/learner-data-gateway/internal/domain/audit"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
	"github.com/learnershield/learner-data-gateway/internal/testutil"
)

// captureSink records appended events and can be told to fail the first
// N attempts per event, or block until released.
type captureSink struct {
	mu       sync.Mutex
	events   []*audit.Event
	attempts map[uuid.UUID]int
	failures int

	block chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{attempts: make(map[uuid.UUID]int)}
}

func (c *captureSink) Append(_ context.Context, event *audit.Event) error {
	if c.block != nil {
		<-c.block
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts[event.ID]++
	if c.attempts[event.ID] <= c.failures {
		return fmt.Errorf("simulated append failure")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) Events() []*audit.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*audit.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *captureSink) Attempts(id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[id]
}

func testAuditConfig(bufferSize int) *config.AuditConfig {
	return &config.AuditConfig{
		BufferSize:  bufferSize,
		RetryPerSec: 1000,
		RetryBurst:  100,
	}
}

func newTestEvent(t *testing.T, action string) *audit.Event {
	t.Helper()
	event, err := audit.NewEvent(audit.EventAccessAllowed,
		uuid.New(), uuid.New(), action, time.Now())
	require.NoError(t, err)
	return event
}

func TestNewBufferedSink_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	dest := newCaptureSink()

	t.Run("nil destination", func(t *testing.T) {
		_, err := NewBufferedSink(nil, testAuditConfig(8), logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "destination sink")
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewBufferedSink(dest, nil, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audit config")
	})

	t.Run("nil logger", func(t *testing.T) {
		_, err := NewBufferedSink(dest, testAuditConfig(8), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger")
	})
}

func TestBufferedSink_DeliversInOrder(t *testing.T) {
	dest := newCaptureSink()
	sink, err := NewBufferedSink(dest, testAuditConfig(16), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer sink.Close(time.Second)

	ctx := context.Background()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		event := newTestEvent(t, fmt.Sprintf("action-%d", i))
		ids = append(ids, event.ID)
		require.NoError(t, sink.Append(ctx, event))
	}

	testutil.AssertEventually(t, func() bool {
		return len(dest.Events()) == 5
	}, 2*time.Second, 10*time.Millisecond, "events not delivered")

	delivered := dest.Events()
	for i, event := range delivered {
		assert.Equal(t, ids[i], event.ID, "delivery order must match arrival order")
	}

	stats := sink.Stats()
	assert.Equal(t, int64(5), stats.Enqueued)
	assert.Equal(t, int64(5), stats.Written)
	assert.Equal(t, int64(0), stats.Dropped)
}

func TestBufferedSink_DropsWhenFull(t *testing.T) {
	dest := newCaptureSink()
	dest.block = make(chan struct{})

	sink, err := NewBufferedSink(dest, testAuditConfig(2), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()

	// First event occupies the worker, two more fill the buffer. Give the
	// worker a moment to pick up the first one.
	require.NoError(t, sink.Append(ctx, newTestEvent(t, "occupies-worker")))
	testutil.AssertEventually(t, func() bool {
		return sink.Stats().Pending == 0
	}, time.Second, 5*time.Millisecond, "worker never picked up first event")

	require.NoError(t, sink.Append(ctx, newTestEvent(t, "buffered-1")))
	require.NoError(t, sink.Append(ctx, newTestEvent(t, "buffered-2")))

	// Buffer is full now; this one must be dropped, not blocked on.
	overflow := newTestEvent(t, "overflow")
	done := make(chan error, 1)
	go func() {
		done <- sink.Append(ctx, overflow)
	}()

	select {
	case appendErr := <-done:
		require.NoError(t, appendErr)
	case <-time.After(time.Second):
		t.Fatal("Append blocked on a full buffer")
	}

	assert.Equal(t, int64(1), sink.Stats().Dropped)

	close(dest.block)
	require.NoError(t, sink.Close(2*time.Second))
	assert.Len(t, dest.Events(), 3)
}

func TestBufferedSink_RetriesFailedAppends(t *testing.T) {
	dest := newCaptureSink()
	dest.failures = 2

	sink, err := NewBufferedSink(dest, testAuditConfig(8), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer sink.Close(time.Second)

	event := newTestEvent(t, "flaky-destination")
	require.NoError(t, sink.Append(context.Background(), event))

	testutil.AssertEventually(t, func() bool {
		return len(dest.Events()) == 1
	}, 2*time.Second, 10*time.Millisecond, "event never succeeded")

	assert.Equal(t, 3, dest.Attempts(event.ID))
	assert.Equal(t, int64(1), sink.Stats().Written)
	assert.Equal(t, int64(0), sink.Stats().Dropped)
}

func TestBufferedSink_AbandonsAfterMaxAttempts(t *testing.T) {
	dest := newCaptureSink()
	dest.failures = maxAppendAttempts

	sink, err := NewBufferedSink(dest, testAuditConfig(8), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer sink.Close(time.Second)

	event := newTestEvent(t, "dead-destination")
	require.NoError(t, sink.Append(context.Background(), event))

	testutil.AssertEventually(t, func() bool {
		return sink.Stats().Dropped == 1
	}, 2*time.Second, 10*time.Millisecond, "event never abandoned")

	assert.Equal(t, maxAppendAttempts, dest.Attempts(event.ID))
	assert.Empty(t, dest.Events())
}

func TestBufferedSink_CloseFlushesQueue(t *testing.T) {
	dest := newCaptureSink()
	sink, err := NewBufferedSink(dest, testAuditConfig(32), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, sink.Append(ctx, newTestEvent(t, fmt.Sprintf("queued-%d", i))))
	}

	require.NoError(t, sink.Close(2*time.Second))
	assert.Len(t, dest.Events(), 10)
	assert.Equal(t, int64(10), sink.Stats().Written)
}

func TestBufferedSink_CloseTimesOutOnStuckDestination(t *testing.T) {
	dest := newCaptureSink()
	dest.block = make(chan struct{})
	defer close(dest.block)

	sink, err := NewBufferedSink(dest, testAuditConfig(8), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, sink.Append(context.Background(), newTestEvent(t, "stuck")))

	err = sink.Close(50 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
