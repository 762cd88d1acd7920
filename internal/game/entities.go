package game

import (
	"math"

	"github.com/google/uuid"

	"github.com/udisondev/towerwars/internal/bonus"
	"github.com/udisondev/towerwars/internal/protocol"
)

// Tower is one placed tower. Stats are composed once at build commit and
// only change through upgrades.
type Tower struct {
	EntityID      uint32
	PlayerTowerID uuid.UUID
	OwnerPlayerID uint32
	OwnerUserID   uuid.UUID
	Type          TowerType
	Cell          Cell
	X, Y          float64

	HP, MaxHP    float64
	UpgradeLevel uint8
	GoldSpent    int64 // build plus upgrades, feeds the sell refund

	Stats TowerStats

	Cooldown float64 // seconds until the next attack
}

// TowerStats is the composed attack profile of a placed tower.
type TowerStats struct {
	Damage          float64
	Range           float64 // grid cells
	AttackSpeed     float64 // attacks per second
	DamageType      DamageType
	IsProjectile    bool
	ProjectileSpeed float64
	SplashRadius    float64
	SlowAmount      float64
	SlowDuration    float64
	CritChance      float64 // percent
	CritMultiplier  float64 // percent
	HitsMultiple    bool
	MaxTargets      int
	GoldFindPercent float64
	XPGainPercent   float64
}

// ComposeTowerStats folds a loadout into the archetype's intrinsic stats.
// An equipped weapon replaces damage, range and attack speed before the
// percentage and flat bonuses apply; damage type always stays the tower's.
func ComposeTowerStats(spec TowerSpec, lo bonus.Loadout) (TowerStats, float64) {
	s := lo.Summary
	if s == nil {
		s = bonus.Summary{}
	}

	damage := spec.Damage
	rng := spec.Range
	speed := spec.AttackSpeed
	isProjectile := spec.IsProjectile
	hitsMultiple := false
	maxTargets := 1
	if w := lo.Weapon; w != nil {
		damage = w.Damage
		rng = w.Range
		speed = w.AttackSpeed
		isProjectile = w.IsProjectile
		hitsMultiple = w.HitsMultiple
		if w.MaxTargets > 1 {
			maxTargets = w.MaxTargets
		}
	}

	damage = math.Floor(damage*(1+s.Get(bonus.DamagePercent)/100)) + s.Get(bonus.DamageFlat)
	if spec.DamageType != DamagePhysical {
		damage = damage*(1+s.Get(bonus.ElementalDamagePercent)/100) + s.Get(bonus.ElementalDamageFlat)
	}
	rng *= 1 + s.Get(bonus.RangePercent)/100
	speed *= 1 + s.Get(bonus.AttackSpeedPercent)/100

	stats := TowerStats{
		Damage:          damage,
		Range:           rng,
		AttackSpeed:     speed,
		DamageType:      spec.DamageType,
		IsProjectile:    isProjectile,
		ProjectileSpeed: spec.ProjectileSpeed,
		SplashRadius:    spec.SplashRadius + s.Get(bonus.SplashRadius),
		SlowAmount:      spec.SlowAmount + s.Get(bonus.SlowAmount)/100,
		SlowDuration:    spec.SlowDuration + s.Get(bonus.SlowDuration),
		CritChance:      s.Get(bonus.CritChance),
		CritMultiplier:  baseCritMult + s.Get(bonus.CritMultiplier),
		HitsMultiple:    hitsMultiple,
		MaxTargets:      maxTargets,
		GoldFindPercent: s.Get(bonus.GoldFindPercent),
		XPGainPercent:   s.Get(bonus.XPGainPercent),
	}

	maxHP := towerBaseHP + s.Get(bonus.TowerHPFlat) + towerBaseHP*s.Get(bonus.TowerHPPercent)/100
	return stats, maxHP
}

// CurrentDamage applies the upgrade multiplier to the composed base damage.
func (t *Tower) CurrentDamage() float64 {
	return math.Floor(t.Stats.Damage * (1 + upgradeDamageStep*float64(t.UpgradeLevel)))
}

// State snapshots the tower for the wire.
func (t *Tower) State() protocol.TowerState {
	return protocol.TowerState{
		EntityID:      t.EntityID,
		TowerType:     byte(t.Type),
		OwnerPlayerID: t.OwnerPlayerID,
		GX:            t.Cell.GX,
		GY:            t.Cell.GY,
		HP:            int32(math.Ceil(t.HP)),
		MaxHP:         int32(math.Ceil(t.MaxHP)),
		UpgradeLevel:  t.UpgradeLevel,
		Damage:        int32(t.CurrentDamage()),
		Range:         float32(t.Stats.Range),
		AttackSpeed:   float32(t.Stats.AttackSpeed),
		DamageType:    byte(t.Stats.DamageType),
	}
}

// Unit is one walking wave unit.
type Unit struct {
	EntityID  uint32
	Type      UnitType
	Rarity    Rarity
	Modifiers Modifier

	X, Y      float64
	Direction float64 // +1 along x
	BaseSpeed float64
	Speed     float64

	HP, MaxHP    float64
	ShieldActive bool

	SlowLeft   float64 // seconds of slow remaining
	SlowAmount float64
	hastened   bool // Hasted triggered by first damage

	GoldReward int64
	XPReward   int64
	LivesCost  int32
	DropChance float64
}

// Has reports whether the unit carries the modifier.
func (u *Unit) Has(m Modifier) bool {
	return u.Modifiers&m != 0
}

// EffectiveSpeed folds slow and haste into the base speed.
func (u *Unit) EffectiveSpeed() float64 {
	speed := u.BaseSpeed
	if u.hastened {
		speed *= hastedSpeedMult
	}
	if u.SlowLeft > 0 {
		speed *= 1 - u.SlowAmount
	}
	return speed
}

// State snapshots the unit for the wire.
func (u *Unit) State() protocol.UnitState {
	return protocol.UnitState{
		EntityID:     u.EntityID,
		UnitType:     byte(u.Type),
		Rarity:       byte(u.Rarity),
		Modifiers:    uint16(u.Modifiers),
		X:            float32(u.X),
		Y:            float32(u.Y),
		Speed:        float32(u.EffectiveSpeed()),
		HP:           int32(math.Ceil(u.HP)),
		MaxHP:        int32(math.Ceil(u.MaxHP)),
		ShieldActive: u.ShieldActive,
	}
}

// ItemType classifies dropped items.
type ItemType uint8

const (
	ItemWeapon  ItemType = 1
	ItemArmor   ItemType = 2
	ItemTrinket ItemType = 3
)

// ItemDrop is a transient pickup owned by the killing player.
type ItemDrop struct {
	EntityID      uint32 // doubles as the session-scoped drop id
	X, Y          float64
	ItemType      ItemType
	Rarity        Rarity
	ItemLevel     uint16
	Name          string
	OwnerPlayerID uint32
	OwnerUserID   uuid.UUID
	Collected     bool
	ExpiresIn     float64 // seconds until the drop despawns
}

// State snapshots the drop for the wire.
func (d *ItemDrop) State() protocol.DropState {
	return protocol.DropState{
		EntityID:      d.EntityID,
		X:             float32(d.X),
		Y:             float32(d.Y),
		ItemType:      byte(d.ItemType),
		Rarity:        byte(d.Rarity),
		ItemLevel:     d.ItemLevel,
		OwnerPlayerID: d.OwnerPlayerID,
		Name:          d.Name,
	}
}

// Player is one participant's in-session state.
type Player struct {
	PlayerID    uint32
	PeerID      uint32
	UserID      uuid.UUID
	CharacterID uuid.UUID

	Gold    int64
	Lives   int32
	Score   int64
	TeamID  uint8
	IsReady bool

	Connected        bool
	LastInputSeq     uint32
	AbilityCooldown  float64
	TowerPurchases   map[uuid.UUID]int // playerTowerID -> successful builds
	UnitsKilled      uint32
	GoldEarned       int64
}

// State snapshots the player for the wire.
func (p *Player) State() protocol.PlayerState {
	return protocol.PlayerState{
		PlayerID:  p.PlayerID,
		Gold:      p.Gold,
		Lives:     p.Lives,
		Score:     p.Score,
		TeamID:    p.TeamID,
		IsReady:   p.IsReady,
		Connected: p.Connected,
	}
}
