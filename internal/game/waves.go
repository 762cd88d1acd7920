package game

import (
	"math"
	"math/rand/v2"
)

// waveSpacing is the gap between queued units at spawn, in cells.
const waveSpacing = 0.75

// WavePlan describes the units of one wave before they are instantiated.
type WavePlan struct {
	Wave    uint32
	Type    UnitType
	Count   int
	Escorts int // Basic escorts accompanying a boss
}

// PlanWave derives the wave composition. Bosses march every 10th wave with
// Basic escorts; Tank and Fast waves interleave on their own cadence.
func PlanWave(wave uint32) WavePlan {
	plan := WavePlan{Wave: wave, Type: UnitBasic, Count: 5 + 2*int(wave)}
	switch {
	case wave%10 == 0:
		plan.Type = UnitBoss
		plan.Count = 1
		plan.Escorts = int(wave / 2)
	case wave%5 == 0:
		plan.Type = UnitTank
	case wave%3 == 0:
		plan.Type = UnitFast
	}
	return plan
}

// waveHPScale grows unit HP as waves progress.
func waveHPScale(wave uint32) float64 {
	return 1 + 0.12*float64(wave-1)
}

// rollUnitRarity draws the rarity tier for one spawning unit. Chances climb
// with the wave number up to fixed caps; bosses never roll below Magic.
func rollUnitRarity(rng *rand.Rand, wave uint32, unitType UnitType) Rarity {
	rareChance := math.Min(0.03+0.0025*float64(wave), 0.12)
	magicChance := math.Min(0.12+0.005*float64(wave), 0.30)

	roll := rng.Float64()
	switch {
	case roll < rareChance:
		return RarityRare
	case roll < rareChance+magicChance:
		return RarityMagic
	case unitType == UnitBoss:
		return RarityMagic
	}
	return RarityNormal
}

// modifierCount is how many modifiers a rarity tier grants.
func modifierCount(r Rarity) int {
	switch r {
	case RarityMagic:
		return 1
	case RarityRare:
		return 3
	}
	return 0
}

// rollModifiers draws n distinct modifiers.
func rollModifiers(rng *rand.Rand, n int) Modifier {
	if n <= 0 {
		return 0
	}
	perm := rng.Perm(len(allModifiers))
	var mods Modifier
	for _, idx := range perm[:n] {
		mods |= allModifiers[idx]
	}
	return mods
}

// buildUnit instantiates one unit of the wave at queue slot i. The entity id
// is assigned by the caller.
func buildUnit(rng *rand.Rand, wave uint32, unitType UnitType, rarity Rarity, mods Modifier, slot int, pathY float64) *Unit {
	spec, _ := UnitSpecFor(unitType)

	hp := spec.HP * waveHPScale(wave)
	switch rarity {
	case RarityMagic:
		hp *= magicHPMult
	case RarityRare:
		hp *= rareHPMult
	}
	if mods&ModTough != 0 {
		hp *= toughHPMult
	}

	speed := spec.Speed
	if mods&ModSwift != 0 {
		speed *= swiftSpeedMult
	}

	return &Unit{
		Type:         unitType,
		Rarity:       rarity,
		Modifiers:    mods,
		X:            -1 - float64(slot)*waveSpacing,
		Y:            pathY,
		Direction:    1,
		BaseSpeed:    speed,
		Speed:        speed,
		HP:           hp,
		MaxHP:        hp,
		ShieldActive: mods&ModShielded != 0,
		GoldReward:   spec.GoldReward,
		XPReward:     spec.XPReward,
		LivesCost:    spec.LivesCost,
		DropChance:   spec.DropChance,
	}
}
