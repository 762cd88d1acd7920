package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the logical stream name shared by all sessions.
const DefaultStream = "stream:game-events"

// deadSuffix names the poison-pill stream next to the main one.
const deadSuffix = ":dead"

// Appender is the publish side of the stream.
type Appender interface {
	Append(ctx context.Context, values map[string]any) error
}

// GroupReader is the consume side of the stream.
type GroupReader interface {
	// CreateGroup ensures the consumer group exists. Creating an existing
	// group is not an error.
	CreateGroup(ctx context.Context, group string) error
	// Read blocks up to block for new records delivered to the group.
	// A timeout returns an empty batch, not an error.
	Read(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]Record, error)
	// Claim takes over records another consumer left pending for at least
	// minIdle, with delivery counts populated.
	Claim(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]Record, error)
	// Ack marks records as done for the group.
	Ack(ctx context.Context, group string, ids ...string) error
	// DeadLetter copies a record to the dead-letter stream.
	DeadLetter(ctx context.Context, rec Record) error
}

// RedisStream maps the stream contract onto Redis streams.
type RedisStream struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewRedisStream wraps rdb for the named stream. maxLen bounds the stream
// with approximate trimming; zero disables trimming.
func NewRedisStream(rdb *redis.Client, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (s *RedisStream) Append(ctx context.Context, values map[string]any) error {
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("appending to %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisStream) CreateGroup(ctx context.Context, group string) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating group %s on %s: %w", group, s.stream, err)
	}
	return nil
}

func (s *RedisStream) Read(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]Record, error) {
	streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading group %s: %w", group, err)
	}
	var out []Record
	for _, st := range streams {
		for _, msg := range st.Messages {
			out = append(out, toRecord(msg, 1))
		}
	}
	return out, nil
}

func (s *RedisStream) Claim(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]Record, error) {
	msgs, _, err := s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("claiming for group %s: %w", group, err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	deliveries := map[string]int64{}
	pend, err := s.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching pending counts for group %s: %w", group, err)
	}
	for _, p := range pend {
		deliveries[p.ID] = p.RetryCount
	}

	out := make([]Record, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, toRecord(msg, deliveries[msg.ID]))
	}
	return out, nil
}

func (s *RedisStream) Ack(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.rdb.XAck(ctx, s.stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("acking in group %s: %w", group, err)
	}
	return nil
}

func (s *RedisStream) DeadLetter(ctx context.Context, rec Record) error {
	values := make(map[string]any, len(rec.Values)+1)
	for k, v := range rec.Values {
		values[k] = v
	}
	values["OriginalId"] = rec.ID
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream + deadSuffix,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("dead-lettering %s: %w", rec.ID, err)
	}
	return nil
}

func toRecord(msg redis.XMessage, deliveries int64) Record {
	values := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		values[k] = fmt.Sprint(v)
	}
	return Record{ID: msg.ID, Deliveries: deliveries, Values: values}
}
