// Package market holds the exchange vocabulary shared by the state, production and trading layers.
package market

import (
	"sort"
	"strings"
)

// Product identifies a tradable or producible good in canonical form (upper case, underscores).
type Product string

// ParseProduct normalizes a user or wire supplied name into a Product.
func ParseProduct(name string) Product {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.NewReplacer("-", "_", " ", "_").Replace(name)
	return Product(name)
}

func (p Product) String() string { return string(p) }

// Side enumerates order directions.
type Side string

const (
	// Buy indicates a purchase from the market.
	Buy Side = "BUY"
	// Sell indicates a sale to the market.
	Sell Side = "SELL"
)

// RecipeKind distinguishes recipes that consume ingredients from those that do not.
type RecipeKind string

const (
	Basic   RecipeKind = "BASIC"
	Premium RecipeKind = "PREMIUM"
)

// Recipe describes how a product is produced.
type Recipe struct {
	Kind         RecipeKind      `json:"type"`
	Ingredients  map[Product]int `json:"ingredients,omitempty"`
	PremiumBonus *float64        `json:"premiumBonus,omitempty"`
}

// Bonus returns the premium multiplier, 1.0 when unset.
func (r *Recipe) Bonus() float64 {
	if r == nil || r.PremiumBonus == nil {
		return 1.0
	}
	return *r.PremiumBonus
}

// Clone returns a deep copy so callers never alias the ingredient map.
func (r *Recipe) Clone() *Recipe {
	if r == nil {
		return nil
	}
	out := &Recipe{Kind: r.Kind}
	if len(r.Ingredients) > 0 {
		out.Ingredients = make(map[Product]int, len(r.Ingredients))
		for k, v := range r.Ingredients {
			out.Ingredients[k] = v
		}
	}
	if r.PremiumBonus != nil {
		b := *r.PremiumBonus
		out.PremiumBonus = &b
	}
	return out
}

// TeamRole carries the per-account parameters of the yield formula. Nil fields fall back to documented defaults.
type TeamRole struct {
	Branches    *float64 `json:"branches,omitempty"`
	MaxDepth    *int     `json:"maxDepth,omitempty"`
	Decay       *float64 `json:"decay,omitempty"`
	BaseEnergy  *float64 `json:"baseEnergy,omitempty"`
	LevelEnergy *float64 `json:"levelEnergy,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
}

// Clone returns a deep copy of the role.
func (r *TeamRole) Clone() *TeamRole {
	if r == nil {
		return nil
	}
	return &TeamRole{
		Branches:    cloneFloat(r.Branches),
		MaxDepth:    cloneInt(r.MaxDepth),
		Decay:       cloneFloat(r.Decay),
		BaseEnergy:  cloneFloat(r.BaseEnergy),
		LevelEnergy: cloneFloat(r.LevelEnergy),
		Budget:      cloneFloat(r.Budget),
	}
}

// Offer is a buy proposal pushed by the exchange; it is consumed at most once.
type Offer struct {
	OfferID           string  `json:"offerId"`
	Product           Product `json:"product"`
	QuantityRequested int     `json:"quantityRequested"`
	MaxPrice          float64 `json:"maxPrice"`
	Buyer             string  `json:"buyer"`
}

// SortedProducts returns the keys of a product keyed map in lexical order.
func SortedProducts[V any](m map[Product]V) []Product {
	out := make([]Product, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Float returns a pointer to v; handy for optional role and recipe fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
