package production

import (
	"testing"

	"avobot-go/internal/market"
)

func TestYieldWithoutRole(t *testing.T) {
	if got := Yield(nil); got != 0 {
		t.Fatalf("expected 0 for nil role, got %d", got)
	}
	if got := Yield(&market.TeamRole{BaseEnergy: market.Float(10)}); got != 0 {
		t.Fatalf("expected 0 without max depth, got %d", got)
	}
}

func TestYield(t *testing.T) {
	cases := []struct {
		name     string
		role     market.TeamRole
		expected int
	}{
		{
			name:     "defaults only",
			role:     market.TeamRole{MaxDepth: market.Int(3)},
			expected: 0,
		},
		{
			name:     "depth zero counts the root",
			role:     market.TeamRole{MaxDepth: market.Int(0), BaseEnergy: market.Float(3)},
			expected: 3,
		},
		{
			name: "branching tree",
			// levels: 3*1*1=3, 5*0.5*2=5, 7*0.25*4=7
			role: market.TeamRole{
				MaxDepth:    market.Int(2),
				BaseEnergy:  market.Float(3),
				LevelEnergy: market.Float(2),
				Decay:       market.Float(0.5),
				Branches:    market.Float(2),
			},
			expected: 15,
		},
		{
			name: "per level rounding",
			// levels: 1.5 -> 2, 1.5*0.9 = 1.35 -> 1
			role: market.TeamRole{
				MaxDepth:   market.Int(1),
				BaseEnergy: market.Float(1.5),
				Decay:      market.Float(0.9),
			},
			expected: 3,
		},
	}
	for _, tc := range cases {
		role := tc.role
		if got := Yield(&role); got != tc.expected {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.expected, got)
		}
	}
}

func TestApplyPremiumBonus(t *testing.T) {
	if got := ApplyPremiumBonus(7, nil); got != 7 {
		t.Fatalf("nil recipe should keep units, got %d", got)
	}
	if got := ApplyPremiumBonus(7, &market.Recipe{Kind: market.Premium}); got != 7 {
		t.Fatalf("missing bonus should keep units, got %d", got)
	}
	if got := ApplyPremiumBonus(10, &market.Recipe{Kind: market.Premium, PremiumBonus: market.Float(1.25)}); got != 13 {
		t.Fatalf("expected 12.5 to round up to 13, got %d", got)
	}
}
