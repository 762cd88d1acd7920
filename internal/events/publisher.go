package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/udisondev/towerwars/internal/metrics"
)

const (
	defaultQueueSize = 4096
	publishAttempts  = 3
	flushTimeout     = 5 * time.Second
)

// Publisher hands events to the stream without ever blocking the caller.
// Publish enqueues; a single IO worker drains the queue. On overflow the
// oldest queued event is discarded so the tick thread keeps its pace and
// fresh events win.
type Publisher struct {
	log    *slog.Logger
	stream Appender
	queue  chan Event
}

// NewPublisher builds a publisher over the given stream.
func NewPublisher(log *slog.Logger, stream Appender, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Publisher{
		log:    log,
		stream: stream,
		queue:  make(chan Event, queueSize),
	}
}

// Publish enqueues one event. Never blocks.
func (p *Publisher) Publish(e Event) {
	for {
		select {
		case p.queue <- e:
			metrics.EventQueueDepth.Set(float64(len(p.queue)))
			return
		default:
		}
		// Queue full: evict the oldest and try again.
		select {
		case old := <-p.queue:
			metrics.EventsDropped.WithLabelValues("overflow").Inc()
			p.log.Warn("event queue full, dropping oldest", "type", old.EventType())
		default:
		}
	}
}

// Run drains the queue until ctx is canceled, then flushes what remains
// under a bounded timeout.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return p.flush()
		case e := <-p.queue:
			metrics.EventQueueDepth.Set(float64(len(p.queue)))
			p.append(ctx, e)
		}
	}
}

// flush empties the queue against a fresh bounded context. Run's context is
// already gone at this point.
func (p *Publisher) flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case e := <-p.queue:
			p.append(ctx, e)
		default:
			metrics.EventQueueDepth.Set(0)
			return nil
		}
	}
}

// append writes one event with bounded retries. A final failure drops the
// event; durable consumers reconcile gaps elsewhere.
func (p *Publisher) append(ctx context.Context, e Event) {
	fields := e.Fields()
	op := func() error {
		return p.stream.Append(ctx, fields)
	}
	notify := func(err error, _ time.Duration) {
		metrics.EventPublishRetries.Inc()
		p.log.Warn("event publish retry", "type", e.EventType(), "error", err)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), publishAttempts-1), ctx)
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		metrics.EventsDropped.WithLabelValues("publish_error").Inc()
		p.log.Error("event publish failed, dropping", "type", e.EventType(), "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(e.EventType()).Inc()
}
