// Package game owns the authoritative match simulation: sessions, entities,
// waves, combat and loot. All mutation happens on the scheduler goroutine;
// async work re-enters through the per-session pending queue.
package game

import "math"

// DamageType classifies tower damage for unit resistances.
type DamageType uint8

const (
	DamagePhysical DamageType = 1
	DamageFire     DamageType = 2
	DamageCold     DamageType = 3
	DamageLightning DamageType = 4
	DamageChaos    DamageType = 5
	DamageHoly     DamageType = 6
)

// TowerType identifies a tower archetype.
type TowerType uint8

const (
	TowerBasic  TowerType = 1
	TowerCannon TowerType = 2
	TowerFrost  TowerType = 3
	TowerFlame  TowerType = 4
	TowerStorm  TowerType = 5
	TowerChapel TowerType = 6
)

// TowerSpec is the intrinsic stat block of a tower archetype.
type TowerSpec struct {
	Type         TowerType
	Name         string
	DamageType   DamageType
	Damage       float64
	Range        float64 // grid cells
	AttackSpeed  float64 // attacks per second
	BaseCost     int64
	IsProjectile bool
	ProjectileSpeed float64
	SplashRadius float64
	SlowAmount   float64 // fraction, 0.30 = 30% slower
	SlowDuration float64 // seconds
}

var towerSpecs = map[TowerType]TowerSpec{
	TowerBasic:  {Type: TowerBasic, Name: "Basic", DamageType: DamagePhysical, Damage: 10, Range: 3.0, AttackSpeed: 1.0, BaseCost: 1, IsProjectile: true, ProjectileSpeed: 8},
	TowerCannon: {Type: TowerCannon, Name: "Cannon", DamageType: DamagePhysical, Damage: 25, Range: 2.5, AttackSpeed: 0.5, BaseCost: 4, IsProjectile: true, ProjectileSpeed: 6, SplashRadius: 1.0},
	TowerFrost:  {Type: TowerFrost, Name: "Frost", DamageType: DamageCold, Damage: 6, Range: 2.75, AttackSpeed: 0.8, BaseCost: 3, IsProjectile: true, ProjectileSpeed: 7, SlowAmount: 0.30, SlowDuration: 2},
	TowerFlame:  {Type: TowerFlame, Name: "Flame", DamageType: DamageFire, Damage: 4, Range: 2.0, AttackSpeed: 2.5, BaseCost: 3},
	TowerStorm:  {Type: TowerStorm, Name: "Storm", DamageType: DamageLightning, Damage: 18, Range: 3.5, AttackSpeed: 0.7, BaseCost: 5},
	TowerChapel: {Type: TowerChapel, Name: "Chapel", DamageType: DamageHoly, Damage: 14, Range: 3.0, AttackSpeed: 0.9, BaseCost: 6, IsProjectile: true, ProjectileSpeed: 9},
}

// TowerSpecFor returns the spec of a tower archetype.
func TowerSpecFor(t TowerType) (TowerSpec, bool) {
	s, ok := towerSpecs[t]
	return s, ok
}

// UnitType identifies a wave unit archetype.
type UnitType uint8

const (
	UnitBasic UnitType = 1
	UnitFast  UnitType = 2
	UnitTank  UnitType = 3
	UnitBoss  UnitType = 4
)

// UnitSpec is the intrinsic stat block of a unit archetype.
type UnitSpec struct {
	Type       UnitType
	Name       string
	HP         float64
	Speed      float64 // cells per second
	GoldReward int64
	XPReward   int64
	LivesCost  int32
	DropChance float64
}

var unitSpecs = map[UnitType]UnitSpec{
	UnitBasic: {Type: UnitBasic, Name: "Basic", HP: 30, Speed: 1.0, GoldReward: 2, XPReward: 5, LivesCost: 1, DropChance: 0.05},
	UnitFast:  {Type: UnitFast, Name: "Fast", HP: 18, Speed: 1.8, GoldReward: 2, XPReward: 5, LivesCost: 1, DropChance: 0.08},
	UnitTank:  {Type: UnitTank, Name: "Tank", HP: 90, Speed: 0.6, GoldReward: 4, XPReward: 8, LivesCost: 2, DropChance: 0.15},
	UnitBoss:  {Type: UnitBoss, Name: "Boss", HP: 600, Speed: 0.45, GoldReward: 25, XPReward: 40, LivesCost: 5, DropChance: 0.5},
}

// UnitSpecFor returns the spec of a unit archetype.
func UnitSpecFor(t UnitType) (UnitSpec, bool) {
	s, ok := unitSpecs[t]
	return s, ok
}

// Rarity tiers units and items.
type Rarity uint8

const (
	RarityNormal Rarity = 1
	RarityMagic  Rarity = 2
	RarityRare   Rarity = 3
)

func (r Rarity) String() string {
	switch r {
	case RarityNormal:
		return "Normal"
	case RarityMagic:
		return "Magic"
	case RarityRare:
		return "Rare"
	}
	return "Unknown"
}

// Modifier is one special-behaviour flag on a unit. Modifiers form a bitset.
type Modifier uint16

const (
	ModPhysRes Modifier = 1 << iota
	ModFireRes
	ModColdRes
	ModLightningRes
	ModPoisonRes
	ModSwift
	ModHasted
	ModTough
	ModArmored
	ModRegenerating
	ModShielded
	ModVampiric
	ModExplosive
	ModSplitting
)

// allModifiers lists every rollable modifier in bit order.
var allModifiers = []Modifier{
	ModPhysRes, ModFireRes, ModColdRes, ModLightningRes, ModPoisonRes,
	ModSwift, ModHasted, ModTough, ModArmored, ModRegenerating,
	ModShielded, ModVampiric, ModExplosive, ModSplitting,
}

// Modifier tuning.
const (
	resistPerFlag    = 0.30
	armoredResist    = 0.15
	resistCap        = 0.75
	swiftSpeedMult   = 1.4
	hastedSpeedMult  = 1.25
	toughHPMult      = 1.5
	regenPerSecond   = 0.02 // of max HP
	vampiricHealFrac = 0.20
	vampiricRadius   = 2.0
	explosiveDamage  = 20.0
	explosiveRadius  = 1.5
	splitCount       = 2
	splitHPFrac      = 0.45
)

// Rarity multipliers.
const (
	magicGoldMult = 1.5
	rareGoldMult  = 2.5
	magicXPMult   = 2.0
	rareXPMult    = 3.0
	magicDropMult = 2.0
	rareDropMult  = 5.0
	magicHPMult   = 2.0
	rareHPMult    = 4.0
)

func goldRarityMult(r Rarity) float64 {
	switch r {
	case RarityMagic:
		return magicGoldMult
	case RarityRare:
		return rareGoldMult
	}
	return 1
}

func xpRarityMult(r Rarity) float64 {
	switch r {
	case RarityMagic:
		return magicXPMult
	case RarityRare:
		return rareXPMult
	}
	return 1
}

func dropRarityMult(r Rarity) float64 {
	switch r {
	case RarityMagic:
		return magicDropMult
	case RarityRare:
		return rareDropMult
	}
	return 1
}

// Economy and progression tuning.
const (
	startingGold     int64 = 10
	startingLives    int32 = 10
	towerBaseHP            = 100.0
	baseCritMult           = 150.0 // percent
	dynamicCostStep        = 0.2
	upgradeDamageStep      = 0.25
	upgradeCostFactor      = 0.8
	sellRefundFrac         = 0.6

	xpWaveClear    int64 = 10
	xpPerfectWave  int64 = 15
	xpMatchEnd     int64 = 50
	xpVictoryBonus int64 = 100
)

// waveBonusGold is the completion bonus every player receives.
func waveBonusGold(wave uint32) int64 {
	return 5 + int64(wave)
}

// waveEndDropChance is the per-player chance of a wave-completion drop.
func waveEndDropChance(wave uint32) float64 {
	return math.Min(0.25+float64(wave-1)*0.02, 0.9)
}

// elementalResistFor maps a damage type to the modifier that resists it.
// Chaos damage is resisted by poison resistance; physical by PhysRes.
func elementalResistFor(dt DamageType) Modifier {
	switch dt {
	case DamagePhysical:
		return ModPhysRes
	case DamageFire:
		return ModFireRes
	case DamageCold:
		return ModColdRes
	case DamageLightning:
		return ModLightningRes
	case DamageChaos:
		return ModPoisonRes
	}
	return 0
}
