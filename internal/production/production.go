// Package production computes how many units a production cycle yields.
package production

import (
	"math"

	"avobot-go/internal/market"
)

// Yield sums, for every level from 0 to MaxDepth inclusive, energy(level) x decay^level x branches^level rounded
// per level. A nil role or a role without MaxDepth yields nothing.
func Yield(role *market.TeamRole) int {
	if role == nil || role.MaxDepth == nil {
		return 0
	}
	base := valueOr(role.BaseEnergy, 0)
	perLevel := valueOr(role.LevelEnergy, 0)
	decay := valueOr(role.Decay, 1)
	branches := valueOr(role.Branches, 1)

	total := 0
	for level := 0; level <= *role.MaxDepth; level++ {
		energy := base + perLevel*float64(level)
		factor := math.Pow(decay, float64(level)) * math.Pow(branches, float64(level))
		total += roundHalfUp(energy * factor)
	}
	return total
}

// ApplyPremiumBonus scales units by the recipe bonus (1.0 when the recipe or its bonus is absent).
func ApplyPremiumBonus(units int, recipe *market.Recipe) int {
	return roundHalfUp(float64(units) * recipe.Bonus())
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
