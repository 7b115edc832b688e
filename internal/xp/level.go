package xp

import (
	"math"
)

// Level bounds.
const (
	MinLevel = 1
	MaxLevel = 99
)

// Tier is a coarse cosmetic band of levels.
type Tier string

const (
	TierRookie   Tier = "Rookie"
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
	TierDiamond  Tier = "Diamond"
	TierLegend   Tier = "Legend"
)

// tiers are ordered from the highest threshold down.
var tiers = []struct { //nolint:gochecknoglobals // static tier table.
	minLevel int
	tier     Tier
}{
	{minLevel: 85, tier: TierLegend},
	{minLevel: 70, tier: TierDiamond},
	{minLevel: 55, tier: TierPlatinum},
	{minLevel: 40, tier: TierGold},
	{minLevel: 25, tier: TierSilver},
	{minLevel: 10, tier: TierBronze},
}

// cumulative[L] is the total XP needed to reach level L.
var cumulative = requirements() //nolint:gochecknoglobals // derived once from the level curve.

func requirements() [MaxLevel + 1]int {
	var req [MaxLevel + 1]int
	for level := MinLevel + 1; level <= MaxLevel; level++ {
		req[level] = req[level-1] + levelCost(level)
	}
	return req
}

// levelCost is the XP needed to advance from level-1 to level.
//
//nolint:mnd // curve constants
func levelCost(level int) int {
	n := float64(level - 2)
	// Explicit conversions keep the products from being fused so the floor is stable across platforms.
	linear := float64(n * 0.8)
	curve := float64(float64(n*math.Sqrt(n)) * 0.12)
	return int(math.Floor(15 + linear + curve))
}

// RequiredXP returns the cumulative XP needed to reach level. Levels outside 1-99 are clamped.
func RequiredXP(level int) int {
	return cumulative[min(max(level, MinLevel), MaxLevel)]
}

// LevelFor returns the highest level whose requirement does not exceed total.
// The XP ceiling always maps to the max level.
func LevelFor(total int) int {
	if total >= MaxTotalXP {
		return MaxLevel
	}
	level := MinLevel
	for level < MaxLevel && cumulative[level+1] <= total {
		level++
	}
	return level
}

// TierFor maps a level to its tier. The highest matching threshold wins.
func TierFor(level int) Tier {
	for _, t := range tiers {
		if level >= t.minLevel {
			return t.tier
		}
	}
	return TierRookie
}

// progress returns the floors of the current and next level and the percentage between them.
func progress(total, level int) (int, int, float64) {
	if level >= MaxLevel {
		return total, total, 100 //nolint:mnd // percent
	}
	current, next := RequiredXP(level), RequiredXP(level+1)
	return current, next, float64(total-current) / float64(next-current) * 100 //nolint:mnd // percent
}
