package consumers

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/towerwars/internal/db"
	"github.com/udisondev/towerwars/internal/events"
)

type fakeMatchWriter struct {
	raw      []string // stream ids written to the raw log
	started  []db.MatchRow
	finished []uuid.UUID
	waves    []db.WaveRow
	items    []db.CollectedItemRow
}

func (f *fakeMatchWriter) RecordEvent(_ context.Context, streamID string, _ uuid.UUID, _ string, _ time.Time, _ map[string]string) error {
	f.raw = append(f.raw, streamID)
	return nil
}

func (f *fakeMatchWriter) StartMatch(_ context.Context, row db.MatchRow) error {
	f.started = append(f.started, row)
	return nil
}

func (f *fakeMatchWriter) FinishMatch(_ context.Context, matchID uuid.UUID, _ string, _, _ int32, _ time.Time) error {
	f.finished = append(f.finished, matchID)
	return nil
}

func (f *fakeMatchWriter) SaveWave(_ context.Context, row db.WaveRow) error {
	f.waves = append(f.waves, row)
	return nil
}

func (f *fakeMatchWriter) SaveCollectedItem(_ context.Context, row db.CollectedItemRow) error {
	f.items = append(f.items, row)
	return nil
}

// record flattens an event the way the stream stores it.
func record(t *testing.T, id string, e events.Event) events.Record {
	t.Helper()
	values := make(map[string]string)
	for k, v := range e.Fields() {
		values[k] = fmt.Sprint(v)
	}
	return events.Record{ID: id, Values: values}
}

func TestPersistenceMatchLifecycle(t *testing.T) {
	store := &fakeMatchWriter{}
	h := NewPersistence(slog.New(slog.DiscardHandler), store)
	require.Equal(t, "persistence", h.Group())

	matchID := uuid.New()
	playerID := uuid.New()
	now := time.Now().UTC()

	err := h.Apply(context.Background(), record(t, "1-0", events.MatchStarted{
		MatchID:   matchID,
		Mode:      "Solo",
		PlayerIDs: []uuid.UUID{playerID},
		MapID:     1,
		Timestamp: now,
	}))
	require.NoError(t, err)
	require.Len(t, store.started, 1)
	assert.Equal(t, matchID, store.started[0].MatchID)
	assert.Equal(t, "Solo", store.started[0].Mode)
	assert.Equal(t, playerID.String(), store.started[0].PlayerIDs)
	assert.Equal(t, int16(1), store.started[0].MapID)

	err = h.Apply(context.Background(), record(t, "2-0", events.MatchEnded{
		MatchID:         matchID,
		Result:          "Victory",
		WavesCompleted:  30,
		DurationSeconds: 1800,
		Timestamp:       now.Add(30 * time.Minute),
	}))
	require.NoError(t, err)
	require.Len(t, store.finished, 1)
	assert.Equal(t, matchID, store.finished[0])

	// every applied record also lands in the raw log
	assert.Equal(t, []string{"1-0", "2-0"}, store.raw)
}

func TestPersistenceWaveAndItem(t *testing.T) {
	store := &fakeMatchWriter{}
	h := NewPersistence(slog.New(slog.DiscardHandler), store)

	matchID := uuid.New()
	itemID := uuid.New()
	playerID := uuid.New()

	err := h.Apply(context.Background(), record(t, "3-0", events.WaveCompleted{
		MatchID:     matchID,
		WaveNumber:  7,
		UnitsKilled: 12,
		UnitsLeaked: 1,
		IsPerfect:   false,
		Timestamp:   time.Now(),
	}))
	require.NoError(t, err)
	require.Len(t, store.waves, 1)
	assert.Equal(t, int32(7), store.waves[0].WaveNumber)
	assert.Equal(t, int32(12), store.waves[0].UnitsKilled)
	assert.False(t, store.waves[0].IsPerfect)

	err = h.Apply(context.Background(), record(t, "4-0", events.ItemCollected{
		MatchID:   matchID,
		PlayerID:  playerID,
		ItemID:    itemID,
		DropID:    9,
		ItemType:  2,
		Rarity:    3,
		ItemLevel: 7,
		Name:      "Runed Core",
		Timestamp: time.Now(),
	}))
	require.NoError(t, err)
	require.Len(t, store.items, 1)
	assert.Equal(t, itemID, store.items[0].ItemID)
	assert.Equal(t, playerID, store.items[0].PlayerID)
	assert.Equal(t, "Runed Core", store.items[0].Name)
	assert.Equal(t, int32(7), store.items[0].ItemLevel)
}

func TestPersistenceRawLogsUnstructuredTypes(t *testing.T) {
	store := &fakeMatchWriter{}
	h := NewPersistence(slog.New(slog.DiscardHandler), store)

	err := h.Apply(context.Background(), record(t, "5-0", events.UnitKilled{
		MatchID:     uuid.New(),
		PlayerID:    uuid.New(),
		UnitID:      41,
		GoldAwarded: 5,
		Timestamp:   time.Now(),
	}))
	require.NoError(t, err)
	assert.Empty(t, store.started)
	assert.Empty(t, store.waves)
	assert.Equal(t, []string{"5-0"}, store.raw)
}

func TestPersistenceRejectsMalformedRecord(t *testing.T) {
	store := &fakeMatchWriter{}
	h := NewPersistence(slog.New(slog.DiscardHandler), store)

	rec := events.Record{ID: "6-0", Values: map[string]string{
		"EventType": events.TypeMatchStarted,
		"MatchId":   "not-a-uuid",
	}}
	err := h.Apply(context.Background(), rec)
	require.Error(t, err)
	assert.Empty(t, store.raw)
}
