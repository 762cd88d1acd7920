package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStream serves pre-loaded claim and read batches, then cancels the
// consumer's context so Run returns.
type scriptedStream struct {
	mu      sync.Mutex
	claims  [][]Record
	reads   [][]Record
	acked   []string
	dead    []Record
	groups  []string
	ackErr  error
	allDone context.CancelFunc
}

func (s *scriptedStream) CreateGroup(_ context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, group)
	return nil
}

func (s *scriptedStream) Claim(_ context.Context, _, _ string, _ time.Duration, _ int64) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.claims) == 0 {
		return nil, nil
	}
	batch := s.claims[0]
	s.claims = s.claims[1:]
	return batch, nil
}

func (s *scriptedStream) Read(_ context.Context, _, _ string, _ int64, _ time.Duration) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reads) == 0 {
		if s.allDone != nil {
			s.allDone()
		}
		return nil, nil
	}
	batch := s.reads[0]
	s.reads = s.reads[1:]
	if len(s.reads) == 0 && len(s.claims) == 0 && s.allDone != nil {
		s.allDone()
	}
	return batch, nil
}

func (s *scriptedStream) Ack(_ context.Context, _ string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ackErr != nil {
		return s.ackErr
	}
	s.acked = append(s.acked, ids...)
	return nil
}

func (s *scriptedStream) DeadLetter(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = append(s.dead, rec)
	return nil
}

// recordingHandler applies records, failing the IDs listed in failIDs.
type recordingHandler struct {
	mu      sync.Mutex
	applied []string
	failIDs map[string]bool
}

func (h *recordingHandler) Group() string { return "test-group" }

func (h *recordingHandler) Apply(_ context.Context, rec Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failIDs[rec.ID] {
		return errors.New("apply failed")
	}
	h.applied = append(h.applied, rec.ID)
	return nil
}

func runConsumer(t *testing.T, stream *scriptedStream, handler Handler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream.allDone = cancel

	c, err := NewConsumer(ConsumerConfig{
		Logger:        discard(),
		Stream:        stream,
		Handler:       handler,
		Consumer:      "test",
		MaxDeliveries: 3,
	})
	require.NoError(t, err)
	require.NoError(t, c.Run(ctx))
}

func rec(id string, deliveries int64) Record {
	return Record{ID: id, Deliveries: deliveries, Values: map[string]string{"EventType": TypeUnitKilled}}
}

func TestConsumerAppliesAndAcks(t *testing.T) {
	stream := &scriptedStream{reads: [][]Record{{rec("1-0", 0), rec("2-0", 0)}}}
	handler := &recordingHandler{}
	runConsumer(t, stream, handler)

	assert.Equal(t, []string{"test-group"}, stream.groups)
	assert.Equal(t, []string{"1-0", "2-0"}, handler.applied)
	assert.Equal(t, []string{"1-0", "2-0"}, stream.acked)
	assert.Empty(t, stream.dead)
}

func TestConsumerLeavesFailedRecordsPending(t *testing.T) {
	stream := &scriptedStream{reads: [][]Record{{rec("1-0", 0), rec("2-0", 0)}}}
	handler := &recordingHandler{failIDs: map[string]bool{"1-0": true}}
	runConsumer(t, stream, handler)

	assert.Equal(t, []string{"2-0"}, handler.applied)
	assert.Equal(t, []string{"2-0"}, stream.acked, "failed record is not acked")
}

func TestConsumerReappliesClaimedRecords(t *testing.T) {
	stream := &scriptedStream{claims: [][]Record{{rec("1-0", 2)}}}
	handler := &recordingHandler{}
	runConsumer(t, stream, handler)

	assert.Equal(t, []string{"1-0"}, handler.applied)
	assert.Equal(t, []string{"1-0"}, stream.acked)
}

func TestConsumerDeadLettersPoisonPills(t *testing.T) {
	stream := &scriptedStream{claims: [][]Record{{rec("6-0", 4)}}}
	handler := &recordingHandler{failIDs: map[string]bool{"6-0": true}}
	runConsumer(t, stream, handler)

	assert.Empty(t, handler.applied, "poison pill is never handed to the handler again")
	require.Len(t, stream.dead, 1)
	assert.Equal(t, "6-0", stream.dead[0].ID)
	assert.Equal(t, []string{"6-0"}, stream.acked, "dead-lettered record leaves the pending list")
}
