package events

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/udisondev/towerwars/internal/metrics"
)

// Handler applies one record's durable effect. Apply must be idempotent:
// unacknowledged records are redelivered.
type Handler interface {
	// Group names the consumer group this handler reads under.
	Group() string
	// Apply performs the durable effect for one record.
	Apply(ctx context.Context, rec Record) error
}

// ConsumerConfig tunes one group's read loop.
type ConsumerConfig struct {
	Logger  *slog.Logger
	Stream  GroupReader
	Handler Handler

	// Optional with defaults.
	Consumer      string // consumer name within the group; defaults to hostname
	BatchSize     int64
	BlockTime     time.Duration
	ClaimMinIdle  time.Duration
	MaxDeliveries int64
}

func (c *ConsumerConfig) validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Stream == nil {
		return fmt.Errorf("stream is required")
	}
	if c.Handler == nil {
		return fmt.Errorf("handler is required")
	}
	if c.Consumer == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "consumer"
		}
		c.Consumer = host
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.BlockTime <= 0 {
		c.BlockTime = 5 * time.Second
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = time.Minute
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 5
	}
	return nil
}

// Consumer reads the stream under one consumer group with at-least-once
// delivery. Each pass first claims records stuck with dead consumers, then
// reads fresh ones. A record whose Apply fails stays pending and is
// redelivered; a record redelivered past MaxDeliveries moves to the
// dead-letter stream so a poison pill cannot block the group.
type Consumer struct {
	cfg ConsumerConfig
	log *slog.Logger
}

// NewConsumer validates cfg and builds a consumer.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating consumer config: %w", err)
	}
	return &Consumer{cfg: cfg, log: cfg.Logger.With("group", cfg.Handler.Group())}, nil
}

// Run drives the read loop until ctx is canceled. Transient stream errors
// back off and retry; the loop only returns on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	group := c.cfg.Handler.Group()
	if err := c.createGroup(ctx, group); err != nil {
		return err
	}
	c.log.Info("consumer started", "consumer", c.cfg.Consumer)

	bo := backoff.NewExponentialBackOff()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.pass(ctx, group); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			c.log.Warn("consumer pass failed, backing off", "wait", wait, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
	}
}

func (c *Consumer) createGroup(ctx context.Context, group string) error {
	op := func() error { return c.cfg.Stream.CreateGroup(ctx, group) }
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("ensuring group %s: %w", group, err)
	}
	return nil
}

// pass processes one claim batch and one read batch.
func (c *Consumer) pass(ctx context.Context, group string) error {
	claimed, err := c.cfg.Stream.Claim(ctx, group, c.cfg.Consumer, c.cfg.ClaimMinIdle, c.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, rec := range claimed {
		if rec.Deliveries > c.cfg.MaxDeliveries {
			c.deadLetter(ctx, group, rec)
			continue
		}
		c.apply(ctx, group, rec)
	}

	fresh, err := c.cfg.Stream.Read(ctx, group, c.cfg.Consumer, c.cfg.BatchSize, c.cfg.BlockTime)
	if err != nil {
		return err
	}
	for _, rec := range fresh {
		c.apply(ctx, group, rec)
	}
	return nil
}

// apply runs the handler and acks on success. On failure the record stays
// pending for redelivery.
func (c *Consumer) apply(ctx context.Context, group string, rec Record) {
	if err := c.cfg.Handler.Apply(ctx, rec); err != nil {
		metrics.ConsumerRecords.WithLabelValues(group, "failed").Inc()
		c.log.Warn("applying record failed, leaving pending",
			"id", rec.ID, "type", rec.EventType(), "error", err)
		return
	}
	if err := c.cfg.Stream.Ack(ctx, group, rec.ID); err != nil {
		metrics.ConsumerRecords.WithLabelValues(group, "ack_failed").Inc()
		c.log.Warn("acking record failed", "id", rec.ID, "error", err)
		return
	}
	metrics.ConsumerRecords.WithLabelValues(group, "applied").Inc()
}

// deadLetter parks an exhausted record and acks it away from the group.
func (c *Consumer) deadLetter(ctx context.Context, group string, rec Record) {
	if err := c.cfg.Stream.DeadLetter(ctx, rec); err != nil {
		c.log.Error("dead-lettering failed, leaving pending", "id", rec.ID, "error", err)
		return
	}
	if err := c.cfg.Stream.Ack(ctx, group, rec.ID); err != nil {
		c.log.Warn("acking dead-lettered record failed", "id", rec.ID, "error", err)
		return
	}
	metrics.ConsumerDeadLetters.WithLabelValues(group).Inc()
	c.log.Warn("record dead-lettered",
		"id", rec.ID, "type", rec.EventType(), "deliveries", rec.Deliveries)
}
