package consumers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/towerwars/internal/events"
)

type xpGrant struct {
	group    string
	streamID string
	playerID uuid.UUID
	towerID  uuid.UUID
	amount   int64
}

type fakeXPWriter struct {
	grants []xpGrant
}

func (f *fakeXPWriter) AddTowerXP(_ context.Context, group, streamID string, playerID, towerID uuid.UUID, amount int64) error {
	f.grants = append(f.grants, xpGrant{group, streamID, playerID, towerID, amount})
	return nil
}

func TestProgressionCreditsXP(t *testing.T) {
	store := &fakeXPWriter{}
	h := NewProgression(slog.New(slog.DiscardHandler), store)
	require.Equal(t, "auth-tower-xp", h.Group())

	playerID := uuid.New()
	towerID := uuid.New()
	err := h.Apply(context.Background(), record(t, "7-0", events.TowerXPGained{
		MatchID:   uuid.New(),
		PlayerID:  playerID,
		TowerID:   towerID,
		XPAmount:  25,
		Source:    "wave",
		Timestamp: time.Now(),
	}))
	require.NoError(t, err)

	require.Len(t, store.grants, 1)
	assert.Equal(t, xpGrant{
		group:    ProgressionGroup,
		streamID: "7-0",
		playerID: playerID,
		towerID:  towerID,
		amount:   25,
	}, store.grants[0])
}

func TestProgressionIgnoresOtherTypes(t *testing.T) {
	store := &fakeXPWriter{}
	h := NewProgression(slog.New(slog.DiscardHandler), store)

	err := h.Apply(context.Background(), record(t, "8-0", events.MatchEnded{
		MatchID:   uuid.New(),
		Result:    "Defeat",
		Timestamp: time.Now(),
	}))
	require.NoError(t, err)
	assert.Empty(t, store.grants)
}

func TestProgressionSkipsNonPositiveAmount(t *testing.T) {
	store := &fakeXPWriter{}
	h := NewProgression(slog.New(slog.DiscardHandler), store)

	rec := events.Record{ID: "9-0", Values: map[string]string{
		"EventType": events.TypeTowerXPGained,
		"PlayerId":  uuid.New().String(),
		"TowerId":   uuid.New().String(),
		"XpAmount":  "0",
	}}
	require.NoError(t, h.Apply(context.Background(), rec))
	assert.Empty(t, store.grants)
}

func TestProgressionRejectsMalformedRecord(t *testing.T) {
	store := &fakeXPWriter{}
	h := NewProgression(slog.New(slog.DiscardHandler), store)

	rec := events.Record{ID: "10-0", Values: map[string]string{
		"EventType": events.TypeTowerXPGained,
		"PlayerId":  "garbage",
	}}
	require.Error(t, h.Apply(context.Background(), rec))
	assert.Empty(t, store.grants)
}
