// Package bonus resolves the durable loadout of a player-tower: the
// aggregated stat modifiers from skill allocations and equipped items, plus
// the equipped weapon's attack style if any. The zone server treats the
// result as immutable for the lifetime of a session; re-fetching on
// equipment change is the progression service's concern.
package bonus

import "fmt"

// Type identifies one aggregated modifier bucket.
type Type uint8

const (
	DamagePercent Type = iota + 1
	DamageFlat
	AttackSpeedPercent
	RangePercent
	CritChance
	CritMultiplier
	TowerHPFlat
	TowerHPPercent
	DamageReductionPercent
	GoldFindPercent
	XPGainPercent
	ElementalDamageFlat
	ElementalDamagePercent
	SplashRadius
	SlowAmount
	SlowDuration
)

var typeNames = map[Type]string{
	DamagePercent:          "DamagePercent",
	DamageFlat:             "DamageFlat",
	AttackSpeedPercent:     "AttackSpeedPercent",
	RangePercent:           "RangePercent",
	CritChance:             "CritChance",
	CritMultiplier:         "CritMultiplier",
	TowerHPFlat:            "TowerHpFlat",
	TowerHPPercent:         "TowerHpPercent",
	DamageReductionPercent: "DamageReductionPercent",
	GoldFindPercent:        "GoldFindPercent",
	XPGainPercent:          "XpGainPercent",
	ElementalDamageFlat:    "ElementalDamageFlat",
	ElementalDamagePercent: "ElementalDamagePercent",
	SplashRadius:           "SplashRadius",
	SlowAmount:             "SlowAmount",
	SlowDuration:           "SlowDuration",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("BonusType(%d)", uint8(t))
}

// Summary is the sparse aggregation of all modifiers for one player-tower.
// Absent types read as zero.
type Summary map[Type]float64

// Get returns the aggregated value for t, zero when absent.
func (s Summary) Get(t Type) float64 {
	return s[t]
}

// Add folds v into the aggregation.
func (s Summary) Add(t Type, v float64) {
	s[t] += v
}

// WeaponSubtype discriminates equipped weapon behaviour.
type WeaponSubtype uint8

const (
	WeaponBow WeaponSubtype = iota + 1
	WeaponCrossbow
	WeaponWand
	WeaponStaff
	WeaponSword
	WeaponAxe
)

// WeaponAttackStyle overrides a tower's intrinsic attack when a weapon is
// equipped. Damage, Range and AttackSpeed replace the base stats before
// percentage and flat bonuses apply.
type WeaponAttackStyle struct {
	Subtype      WeaponSubtype
	Damage       float64
	Range        float64
	AttackSpeed  float64
	HitsMultiple bool
	MaxTargets   int
	IsProjectile bool
}

// Loadout is the full resolution for one player-tower.
type Loadout struct {
	Summary Summary
	Weapon  *WeaponAttackStyle
}
