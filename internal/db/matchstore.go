package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MatchRow is the durable summary of one match.
type MatchRow struct {
	MatchID   uuid.UUID
	Mode      string
	MapID     int16
	PlayerIDs string // comma-joined user ids, preserved as published
	StartedAt time.Time
}

// WaveRow is the durable outcome of one wave.
type WaveRow struct {
	MatchID     uuid.UUID
	WaveNumber  int32
	UnitsKilled int32
	UnitsLeaked int32
	IsPerfect   bool
	CompletedAt time.Time
}

// CollectedItemRow is one item a player claimed during a match.
type CollectedItemRow struct {
	ItemID      uuid.UUID
	PlayerID    uuid.UUID
	MatchID     uuid.UUID
	ItemType    int16
	Rarity      int16
	ItemLevel   int32
	Name        string
	CollectedAt time.Time
}

// MatchStore writes match results and the raw event log. Every write is
// idempotent under redelivery: inserts collapse on their natural key and
// updates set absolute values.
type MatchStore struct {
	db *DB
}

// NewMatchStore builds a store over the shared pool.
func NewMatchStore(db *DB) *MatchStore {
	return &MatchStore{db: db}
}

// RecordEvent appends one raw event keyed by its stream id.
func (s *MatchStore) RecordEvent(ctx context.Context, streamID string, matchID uuid.UUID, eventType string, occurredAt time.Time, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", streamID, err)
	}
	_, err = s.db.pool.Exec(ctx,
		`INSERT INTO match_events (stream_id, match_id, event_type, occurred_at, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (stream_id) DO NOTHING`,
		streamID, matchID, eventType, occurredAt, body,
	)
	if err != nil {
		return fmt.Errorf("recording event %s: %w", streamID, err)
	}
	return nil
}

// StartMatch creates the match row. A redelivered start leaves the existing
// row untouched.
func (s *MatchStore) StartMatch(ctx context.Context, row MatchRow) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO matches (match_id, mode, map_id, player_ids, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (match_id) DO NOTHING`,
		row.MatchID, row.Mode, row.MapID, row.PlayerIDs, row.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting match %s: %w", row.MatchID, err)
	}
	return nil
}

// FinishMatch closes the match row. The upsert covers an ended event arriving
// before its start: consumer groups see events in order per stream, but a
// dead-lettered start can be replayed out of band.
func (s *MatchStore) FinishMatch(ctx context.Context, matchID uuid.UUID, result string, wavesCompleted, durationSeconds int32, endedAt time.Time) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO matches (match_id, mode, started_at, ended_at, result, waves_completed, duration_seconds)
		 VALUES ($1, '', $2, $2, $3, $4, $5)
		 ON CONFLICT (match_id) DO UPDATE SET
		   ended_at = EXCLUDED.ended_at,
		   result = EXCLUDED.result,
		   waves_completed = EXCLUDED.waves_completed,
		   duration_seconds = EXCLUDED.duration_seconds`,
		matchID, endedAt, result, wavesCompleted, durationSeconds,
	)
	if err != nil {
		return fmt.Errorf("finishing match %s: %w", matchID, err)
	}
	return nil
}

// SaveWave stores one wave outcome.
func (s *MatchStore) SaveWave(ctx context.Context, row WaveRow) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO wave_stats (match_id, wave_number, units_killed, units_leaked, is_perfect, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (match_id, wave_number) DO NOTHING`,
		row.MatchID, row.WaveNumber, row.UnitsKilled, row.UnitsLeaked, row.IsPerfect, row.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("saving wave %d of match %s: %w", row.WaveNumber, row.MatchID, err)
	}
	return nil
}

// SaveCollectedItem stores one claimed item under its minted identity.
func (s *MatchStore) SaveCollectedItem(ctx context.Context, row CollectedItemRow) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO collected_items (item_id, player_id, match_id, item_type, rarity, item_level, name, collected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (item_id) DO NOTHING`,
		row.ItemID, row.PlayerID, row.MatchID, row.ItemType, row.Rarity, row.ItemLevel, row.Name, row.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("saving collected item %s: %w", row.ItemID, err)
	}
	return nil
}
