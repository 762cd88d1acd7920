// Package events carries the zone server's domain events to the shared
// append-only stream and reads them back under consumer groups. Every event
// type is a concrete record with a fixed field set; the stream representation
// is a flat field map so consumers in any language can read it.
package events

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event type names as they appear in the stream.
const (
	TypeMatchStarted  = "match.started"
	TypeMatchEnded    = "match.ended"
	TypeGamePaused    = "game.paused"
	TypeGameResumed   = "game.resumed"
	TypeWaveCompleted = "wave.completed"
	TypeTowerBuilt    = "tower.built"
	TypeTowerSold     = "tower.sold"
	TypeUnitKilled    = "unit.killed"
	TypePlayerDamaged = "player.damaged"
	TypeAbilityUsed   = "ability.used"
	TypeItemDropped   = "item.dropped"
	TypeItemCollected = "item.collected"
	TypeTowerXPGained = "tower.xp_gained"
)

// Event is one domain occurrence bound for the stream.
type Event interface {
	// EventType returns the dotted lowercase type name.
	EventType() string
	// Fields flattens the event into stream record values. EventType and
	// Timestamp are included.
	Fields() map[string]any
}

func base(typ string, matchID uuid.UUID, ts time.Time) map[string]any {
	return map[string]any{
		"EventType": typ,
		"MatchId":   matchID.String(),
		"Timestamp": ts.UTC().Format(time.RFC3339Nano),
	}
}

// MatchStarted fires when a session leaves WaitingForPlayers.
type MatchStarted struct {
	MatchID   uuid.UUID
	Mode      string
	PlayerIDs []uuid.UUID
	MapID     uint8
	Timestamp time.Time
}

func (MatchStarted) EventType() string { return TypeMatchStarted }

func (e MatchStarted) Fields() map[string]any {
	ids := make([]string, len(e.PlayerIDs))
	for i, id := range e.PlayerIDs {
		ids[i] = id.String()
	}
	f := base(TypeMatchStarted, e.MatchID, e.Timestamp)
	f["Mode"] = e.Mode
	f["PlayerIds"] = strings.Join(ids, ",")
	f["MapId"] = int(e.MapID)
	return f
}

// MatchEnded fires exactly once per session.
type MatchEnded struct {
	MatchID         uuid.UUID
	Result          string
	WavesCompleted  uint32
	DurationSeconds uint32
	Timestamp       time.Time
}

func (MatchEnded) EventType() string { return TypeMatchEnded }

func (e MatchEnded) Fields() map[string]any {
	f := base(TypeMatchEnded, e.MatchID, e.Timestamp)
	f["Result"] = e.Result
	f["WavesCompleted"] = int64(e.WavesCompleted)
	f["DurationSeconds"] = int64(e.DurationSeconds)
	return f
}

// GamePaused fires when the session clock stops.
type GamePaused struct {
	MatchID   uuid.UUID
	Reason    string
	Timestamp time.Time
}

func (GamePaused) EventType() string { return TypeGamePaused }

func (e GamePaused) Fields() map[string]any {
	f := base(TypeGamePaused, e.MatchID, e.Timestamp)
	f["Reason"] = e.Reason
	return f
}

// GameResumed fires when the session clock restarts.
type GameResumed struct {
	MatchID   uuid.UUID
	Timestamp time.Time
}

func (GameResumed) EventType() string { return TypeGameResumed }

func (e GameResumed) Fields() map[string]any {
	return base(TypeGameResumed, e.MatchID, e.Timestamp)
}

// WaveCompleted fires when the last unit of a wave is resolved.
type WaveCompleted struct {
	MatchID     uuid.UUID
	WaveNumber  uint32
	UnitsKilled uint32
	UnitsLeaked uint32
	IsPerfect   bool
	Timestamp   time.Time
}

func (WaveCompleted) EventType() string { return TypeWaveCompleted }

func (e WaveCompleted) Fields() map[string]any {
	f := base(TypeWaveCompleted, e.MatchID, e.Timestamp)
	f["WaveNumber"] = int64(e.WaveNumber)
	f["UnitsKilled"] = int64(e.UnitsKilled)
	f["UnitsLeaked"] = int64(e.UnitsLeaked)
	f["IsPerfect"] = strconv.FormatBool(e.IsPerfect)
	return f
}

// TowerBuilt fires when a build commit succeeds.
type TowerBuilt struct {
	MatchID   uuid.UUID
	PlayerID  uuid.UUID // durable user id
	TowerID   uuid.UUID // player-tower id
	TowerType uint8
	GridX     int16
	GridY     int16
	GoldSpent int64
	Timestamp time.Time
}

func (TowerBuilt) EventType() string { return TypeTowerBuilt }

func (e TowerBuilt) Fields() map[string]any {
	f := base(TypeTowerBuilt, e.MatchID, e.Timestamp)
	f["PlayerId"] = e.PlayerID.String()
	f["TowerId"] = e.TowerID.String()
	f["TowerType"] = int(e.TowerType)
	f["GridX"] = int(e.GridX)
	f["GridY"] = int(e.GridY)
	f["GoldSpent"] = e.GoldSpent
	return f
}

// TowerSold fires when a tower is sold back.
type TowerSold struct {
	MatchID      uuid.UUID
	PlayerID     uuid.UUID
	TowerID      uuid.UUID
	GoldReceived int64
	Timestamp    time.Time
}

func (TowerSold) EventType() string { return TypeTowerSold }

func (e TowerSold) Fields() map[string]any {
	f := base(TypeTowerSold, e.MatchID, e.Timestamp)
	f["PlayerId"] = e.PlayerID.String()
	f["TowerId"] = e.TowerID.String()
	f["GoldReceived"] = e.GoldReceived
	return f
}

// UnitKilled fires for every unit removed by tower damage.
type UnitKilled struct {
	MatchID       uuid.UUID
	PlayerID      uuid.UUID
	UnitID        uint32
	UnitType      uint8
	UnitRarity    uint8
	KillerTowerID uuid.UUID
	GoldAwarded   int64
	IsCritical    bool
	Timestamp     time.Time
}

func (UnitKilled) EventType() string { return TypeUnitKilled }

func (e UnitKilled) Fields() map[string]any {
	f := base(TypeUnitKilled, e.MatchID, e.Timestamp)
	f["PlayerId"] = e.PlayerID.String()
	f["UnitId"] = int64(e.UnitID)
	f["UnitType"] = int(e.UnitType)
	f["UnitRarity"] = int(e.UnitRarity)
	f["KillerTowerId"] = e.KillerTowerID.String()
	f["GoldAwarded"] = e.GoldAwarded
	f["IsCritical"] = strconv.FormatBool(e.IsCritical)
	return f
}

// PlayerDamaged fires when a unit leaks past the map edge.
type PlayerDamaged struct {
	MatchID        uuid.UUID
	PlayerID       uuid.UUID
	Damage         int32
	RemainingLives int32
	Timestamp      time.Time
}

func (PlayerDamaged) EventType() string { return TypePlayerDamaged }

func (e PlayerDamaged) Fields() map[string]any {
	f := base(TypePlayerDamaged, e.MatchID, e.Timestamp)
	f["PlayerId"] = e.PlayerID.String()
	f["Damage"] = int64(e.Damage)
	f["RemainingLives"] = int64(e.RemainingLives)
	return f
}

// AbilityUsed fires on a validated AbilityUse.
type AbilityUsed struct {
	MatchID     uuid.UUID
	PlayerID    uuid.UUID
	AbilityType uint8
	TargetX     float64
	TargetY     float64
	Timestamp   time.Time
}

func (AbilityUsed) EventType() string { return TypeAbilityUsed }

func (e AbilityUsed) Fields() map[string]any {
	f := base(TypeAbilityUsed, e.MatchID, e.Timestamp)
	f["PlayerId"] = e.PlayerID.String()
	f["AbilityType"] = int(e.AbilityType)
	f["TargetX"] = strconv.FormatFloat(e.TargetX, 'f', -1, 64)
	f["TargetY"] = strconv.FormatFloat(e.TargetY, 'f', -1, 64)
	return f
}

// ItemDropped fires when a drop spawns on the field.
type ItemDropped struct {
	MatchID   uuid.UUID
	PlayerID  uuid.UUID
	Rarity    uint8
	ItemType  uint8
	Source    string // "kill" or "wave"
	Timestamp time.Time
}

func (ItemDropped) EventType() string { return TypeItemDropped }

func (e ItemDropped) Fields() map[string]any {
	f := base(TypeItemDropped, e.MatchID, e.Timestamp)
	f["PlayerId"] = e.PlayerID.String()
	f["Rarity"] = int(e.Rarity)
	f["ItemType"] = int(e.ItemType)
	f["Source"] = e.Source
	return f
}

// ItemCollected fires when a drop's owner claims it. ItemID is the freshly
// minted durable identity.
type ItemCollected struct {
	MatchID   uuid.UUID
	PlayerID  uuid.UUID
	ItemID    uuid.UUID
	DropID    uint32
	ItemType  uint8
	Rarity    uint8
	ItemLevel uint16
	Name      string
	Timestamp time.Time
}

func (ItemCollected) EventType() string { return TypeItemCollected }

func (e ItemCollected) Fields() map[string]any {
	f := base(TypeItemCollected, e.MatchID, e.Timestamp)
	f["PlayerId"] = e.PlayerID.String()
	f["ItemId"] = e.ItemID.String()
	f["DropId"] = int64(e.DropID)
	f["ItemType"] = int(e.ItemType)
	f["Rarity"] = int(e.Rarity)
	f["ItemLevel"] = int(e.ItemLevel)
	f["Name"] = e.Name
	return f
}

// TowerXPGained fires on wave end and match end with the accumulated XP for
// one player-tower.
type TowerXPGained struct {
	MatchID   uuid.UUID
	PlayerID  uuid.UUID
	TowerID   uuid.UUID
	XPAmount  int64
	Source    string // "wave" or "match"
	Timestamp time.Time
}

func (TowerXPGained) EventType() string { return TypeTowerXPGained }

func (e TowerXPGained) Fields() map[string]any {
	f := base(TypeTowerXPGained, e.MatchID, e.Timestamp)
	f["PlayerId"] = e.PlayerID.String()
	f["TowerId"] = e.TowerID.String()
	f["XpAmount"] = e.XPAmount
	f["Source"] = e.Source
	return f
}
