// Package consumers holds the event handlers the events worker runs: one
// consumer group per durable effect, each reading the shared stream at its
// own pace.
package consumers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/towerwars/internal/db"
	"github.com/udisondev/towerwars/internal/events"
)

// PersistenceGroup is the consumer group that writes match history.
const PersistenceGroup = "persistence"

// MatchWriter is the slice of the match store the persistence handler needs.
type MatchWriter interface {
	RecordEvent(ctx context.Context, streamID string, matchID uuid.UUID, eventType string, occurredAt time.Time, payload map[string]string) error
	StartMatch(ctx context.Context, row db.MatchRow) error
	FinishMatch(ctx context.Context, matchID uuid.UUID, result string, wavesCompleted, durationSeconds int32, endedAt time.Time) error
	SaveWave(ctx context.Context, row db.WaveRow) error
	SaveCollectedItem(ctx context.Context, row db.CollectedItemRow) error
}

// Persistence materializes the stream into match history tables. Every event
// lands in the raw log; match lifecycle, wave outcomes and collected items
// additionally get structured rows.
type Persistence struct {
	log   *slog.Logger
	store MatchWriter
}

// NewPersistence builds the handler.
func NewPersistence(log *slog.Logger, store MatchWriter) *Persistence {
	return &Persistence{log: log, store: store}
}

// Group implements events.Handler.
func (p *Persistence) Group() string { return PersistenceGroup }

// Apply implements events.Handler. A parse failure is returned so the record
// stays pending and eventually dead-letters instead of being silently lost.
func (p *Persistence) Apply(ctx context.Context, rec events.Record) error {
	matchID, err := rec.UUID("MatchId")
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.ID, err)
	}
	occurredAt, err := rec.Time("Timestamp")
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.ID, err)
	}

	switch rec.EventType() {
	case events.TypeMatchStarted:
		mapID, err := rec.Int("MapId")
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		err = p.store.StartMatch(ctx, db.MatchRow{
			MatchID:   matchID,
			Mode:      rec.String("Mode"),
			MapID:     int16(mapID),
			PlayerIDs: rec.String("PlayerIds"),
			StartedAt: occurredAt,
		})
		if err != nil {
			return err
		}

	case events.TypeMatchEnded:
		waves, err := rec.Int("WavesCompleted")
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		duration, err := rec.Int("DurationSeconds")
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		err = p.store.FinishMatch(ctx, matchID, rec.String("Result"), int32(waves), int32(duration), occurredAt)
		if err != nil {
			return err
		}

	case events.TypeWaveCompleted:
		row, err := waveRow(rec, matchID, occurredAt)
		if err != nil {
			return err
		}
		if err := p.store.SaveWave(ctx, row); err != nil {
			return err
		}

	case events.TypeItemCollected:
		row, err := collectedItemRow(rec, matchID, occurredAt)
		if err != nil {
			return err
		}
		if err := p.store.SaveCollectedItem(ctx, row); err != nil {
			return err
		}
	}

	return p.store.RecordEvent(ctx, rec.ID, matchID, rec.EventType(), occurredAt, rec.Values)
}

func waveRow(rec events.Record, matchID uuid.UUID, occurredAt time.Time) (db.WaveRow, error) {
	wave, err := rec.Int("WaveNumber")
	if err != nil {
		return db.WaveRow{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	killed, err := rec.Int("UnitsKilled")
	if err != nil {
		return db.WaveRow{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	leaked, err := rec.Int("UnitsLeaked")
	if err != nil {
		return db.WaveRow{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	perfect, err := rec.Bool("IsPerfect")
	if err != nil {
		return db.WaveRow{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	return db.WaveRow{
		MatchID:     matchID,
		WaveNumber:  int32(wave),
		UnitsKilled: int32(killed),
		UnitsLeaked: int32(leaked),
		IsPerfect:   perfect,
		CompletedAt: occurredAt,
	}, nil
}

func collectedItemRow(rec events.Record, matchID uuid.UUID, occurredAt time.Time) (db.CollectedItemRow, error) {
	itemID, err := rec.UUID("ItemId")
	if err != nil {
		return db.CollectedItemRow{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	playerID, err := rec.UUID("PlayerId")
	if err != nil {
		return db.CollectedItemRow{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	itemType, err := rec.Int("ItemType")
	if err != nil {
		return db.CollectedItemRow{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rarity, err := rec.Int("Rarity")
	if err != nil {
		return db.CollectedItemRow{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	level, err := rec.Int("ItemLevel")
	if err != nil {
		return db.CollectedItemRow{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	return db.CollectedItemRow{
		ItemID:      itemID,
		PlayerID:    playerID,
		MatchID:     matchID,
		ItemType:    int16(itemType),
		Rarity:      int16(rarity),
		ItemLevel:   int32(level),
		Name:        rec.String("Name"),
		CollectedAt: occurredAt,
	}, nil
}
