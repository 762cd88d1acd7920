package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProgressionStore accumulates durable tower XP. An XP grant is an increment,
// so redeliveries must be fenced: each grant lands in one transaction with a
// ledger row keyed by (group, stream id), and a grant whose ledger row
// already exists is skipped.
type ProgressionStore struct {
	db *DB
}

// NewProgressionStore builds a store over the shared pool.
func NewProgressionStore(db *DB) *ProgressionStore {
	return &ProgressionStore{db: db}
}

// AddTowerXP credits amount to the player-tower once per (group, streamID).
func (s *ProgressionStore) AddTowerXP(ctx context.Context, group, streamID string, playerID, towerID uuid.UUID, amount int64) error {
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin xp transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("xp rollback failed", "stream_id", streamID, "error", err)
		}
	}()

	tag, err := tx.Exec(ctx,
		`INSERT INTO processed_events (group_name, stream_id)
		 VALUES ($1, $2)
		 ON CONFLICT (group_name, stream_id) DO NOTHING`,
		group, streamID,
	)
	if err != nil {
		return fmt.Errorf("marking record %s processed: %w", streamID, err)
	}
	if tag.RowsAffected() == 0 {
		// already applied by an earlier delivery
		return nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO tower_xp (player_id, tower_id, xp, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (player_id, tower_id) DO UPDATE SET
		   xp = tower_xp.xp + EXCLUDED.xp,
		   updated_at = now()`,
		playerID, towerID, amount,
	)
	if err != nil {
		return fmt.Errorf("crediting %d xp to tower %s: %w", amount, towerID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing xp for tower %s: %w", towerID, err)
	}
	return nil
}
