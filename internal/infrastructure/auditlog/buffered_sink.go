package auditlog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/learnershield/learner-data-gateway/internal/domain/audit"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
)

const maxAppendAttempts = 3

// BufferedSink decouples the decision path from audit persistence. Append
// enqueues and returns immediately; a single drain worker writes events
// to the destination in arrival order, which keeps the hash chain's
// sequence assignment deterministic. When the buffer is full the event
// is dropped and counted, never blocked on.
type BufferedSink struct {
	dest    audit.Sink
	logger  *zap.Logger
	queue   chan *audit.Event
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	enqueued atomic.Int64
	written  atomic.Int64
	dropped  atomic.Int64

	eventsWritten metric.Int64Counter
	eventsDropped metric.Int64Counter
}

// SinkStats is a snapshot of the sink's counters.
type SinkStats struct {
	Enqueued int64 `json:"enqueued"`
	Written  int64 `json:"written"`
	Dropped  int64 `json:"dropped"`
	Pending  int   `json:"pending"`
}

// NewBufferedSink creates the sink and starts its drain worker.
func NewBufferedSink(dest audit.Sink, cfg *config.AuditConfig, logger *zap.Logger) (*BufferedSink, error) {
	if dest == nil {
		return nil, fmt.Errorf("destination sink is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("audit config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &BufferedSink{
		dest:    dest,
		logger:  logger,
		queue:   make(chan *audit.Event, cfg.BufferSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.RetryPerSec), cfg.RetryBurst),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := s.initMetrics(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	s.wg.Add(1)
	go s.drain()

	return s, nil
}

// Append enqueues the event. It never returns an error and never blocks:
// an audit backlog must not take the decision path down with it.
func (s *BufferedSink) Append(_ context.Context, event *audit.Event) error {
	select {
	case s.queue <- event:
		s.enqueued.Add(1)
	default:
		s.dropped.Add(1)
		s.eventsDropped.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", "buffer_full")))
		s.logger.Error("audit buffer full, event dropped",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", string(event.Type)))
	}
	return nil
}

// Stats returns a snapshot of the sink's counters.
func (s *BufferedSink) Stats() SinkStats {
	return SinkStats{
		Enqueued: s.enqueued.Load(),
		Written:  s.written.Load(),
		Dropped:  s.dropped.Load(),
		Pending:  len(s.queue),
	}
}

// Close stops accepting work and flushes what is already queued, waiting
// up to the given timeout.
func (s *BufferedSink) Close(timeout time.Duration) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		pending := len(s.queue)
		s.logger.Warn("audit sink shutdown timeout, events lost",
			zap.Int("pending", pending))
		return fmt.Errorf("audit sink flush timed out with %d pending events", pending)
	}
}

func (s *BufferedSink) drain() {
	defer s.wg.Done()

	for {
		select {
		case event := <-s.queue:
			s.write(event)

		case <-s.ctx.Done():
			// Best-effort flush of what is already buffered.
			for {
				select {
				case event := <-s.queue:
					s.write(event)
				default:
					return
				}
			}
		}
	}
}

// write persists one event, pacing every attempt through the limiter so
// an audit backlog cannot monopolize database capacity.
func (s *BufferedSink) write(event *audit.Event) {
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		if err := s.limiter.Wait(context.Background()); err != nil {
			return
		}

		err := s.dest.Append(context.Background(), event)
		if err == nil {
			s.written.Add(1)
			s.eventsWritten.Add(context.Background(), 1)
			return
		}

		s.logger.Warn("audit append failed",
			zap.String("event_id", event.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	s.dropped.Add(1)
	s.eventsDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", "append_failed")))
	s.logger.Error("audit event abandoned after retries",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.Type)))
}

func (s *BufferedSink) initMetrics() error {
	meter := otel.Meter("audit.sink")

	eventsWritten, err := meter.Int64Counter("audit.events.written",
		metric.WithDescription("Audit events durably appended to the chain"))
	if err != nil {
		return err
	}
	s.eventsWritten = eventsWritten

	eventsDropped, err := meter.Int64Counter("audit.events.dropped",
		metric.WithDescription("Audit events lost to backpressure or append failure"))
	if err != nil {
		return err
	}
	s.eventsDropped = eventsDropped

	return nil
}
