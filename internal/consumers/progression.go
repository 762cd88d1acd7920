package consumers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/udisondev/towerwars/internal/events"
)

// ProgressionGroup is the consumer group that credits durable tower XP.
const ProgressionGroup = "auth-tower-xp"

// XPWriter is the slice of the progression store the handler needs.
type XPWriter interface {
	AddTowerXP(ctx context.Context, group, streamID string, playerID, towerID uuid.UUID, amount int64) error
}

// Progression credits tower XP grants to the progression tables. Only
// tower.xp_gained records carry an effect; everything else acks straight
// through so the group's pending list stays empty.
type Progression struct {
	log   *slog.Logger
	store XPWriter
}

// NewProgression builds the handler.
func NewProgression(log *slog.Logger, store XPWriter) *Progression {
	return &Progression{log: log, store: store}
}

// Group implements events.Handler.
func (p *Progression) Group() string { return ProgressionGroup }

// Apply implements events.Handler.
func (p *Progression) Apply(ctx context.Context, rec events.Record) error {
	if rec.EventType() != events.TypeTowerXPGained {
		return nil
	}
	playerID, err := rec.UUID("PlayerId")
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.ID, err)
	}
	towerID, err := rec.UUID("TowerId")
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.ID, err)
	}
	amount, err := rec.Int("XpAmount")
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.ID, err)
	}
	if amount <= 0 {
		p.log.Warn("skipping non-positive xp grant", "id", rec.ID, "amount", amount)
		return nil
	}
	return p.store.AddTowerXP(ctx, ProgressionGroup, rec.ID, playerID, towerID, amount)
}
