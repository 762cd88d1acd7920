package game

import (
	"math/rand/v2"
)

// rollItemRarity draws the rarity of a generated item. minimum raises the
// floor (perfect-wave drops are at least Magic).
func rollItemRarity(rng *rand.Rand, minimum Rarity) Rarity {
	roll := rng.Float64()
	var r Rarity
	switch {
	case roll < 0.10:
		r = RarityRare
	case roll < 0.40:
		r = RarityMagic
	default:
		r = RarityNormal
	}
	if r < minimum {
		r = minimum
	}
	return r
}

// rollItemType draws the item slot uniformly.
func rollItemType(rng *rand.Rand) ItemType {
	return ItemType(1 + rng.IntN(3))
}

var itemBaseNames = map[ItemType][]string{
	ItemWeapon:  {"Shortbow", "Longbow", "Crossbow", "Wand", "Staff", "Blade", "Warhammer"},
	ItemArmor:   {"Buckler", "Plating", "Bulwark", "Aegis", "Carapace"},
	ItemTrinket: {"Ring", "Amulet", "Talisman", "Idol", "Sigil"},
}

var magicPrefixes = []string{"Gleaming", "Honed", "Swift", "Stout", "Keen", "Blessed"}

var rareSuffixes = []string{
	"of the Storm", "of Embers", "of the Glacier", "of Ruin",
	"of the Colossus", "of Fortune", "of the Zealot",
}

// generateItemName builds a display name in the classic prefix/suffix style.
// Normal items keep the bare base name; Magic gains a prefix; Rare gains a
// prefix and a suffix.
func generateItemName(rng *rand.Rand, itemType ItemType, rarity Rarity) string {
	bases := itemBaseNames[itemType]
	name := bases[rng.IntN(len(bases))]
	if rarity >= RarityMagic {
		name = magicPrefixes[rng.IntN(len(magicPrefixes))] + " " + name
	}
	if rarity >= RarityRare {
		name = name + " " + rareSuffixes[rng.IntN(len(rareSuffixes))]
	}
	return name
}
