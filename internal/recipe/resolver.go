package recipe

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"avobot-go/internal/apperr"
	"avobot-go/internal/market"
	"avobot-go/internal/state"
)

// Resolver finds the recipe for a product, consulting the store first and the catalog second.
type Resolver struct {
	store   *state.Store
	catalog Catalog
	log     zerolog.Logger

	mu      sync.RWMutex
	species string
	team    string
}

// NewResolver wires a resolver for the given identity. catalog may be nil.
func NewResolver(store *state.Store, catalog Catalog, species, team string, log zerolog.Logger) *Resolver {
	return &Resolver{store: store, catalog: catalog, species: species, team: team, log: log}
}

// SetIdentity updates the species and team used for catalog lookups, typically after login.
func (r *Resolver) SetIdentity(species, team string) {
	r.mu.Lock()
	r.species, r.team = species, team
	r.mu.Unlock()
}

// Identity returns the current species and team.
func (r *Resolver) Identity() (species, team string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.species, r.team
}

// Resolve returns the recipe for p. A catalog hit is stored before it is returned.
func (r *Resolver) Resolve(p market.Product) (*market.Recipe, error) {
	if rec := r.store.Recipe(p); rec != nil {
		return rec, nil
	}
	if r.catalog != nil {
		species, team := r.Identity()
		if rec := r.catalog.RecipesFor(species, team)[p]; rec != nil {
			// SupplementRecipes keeps a server recipe that raced in ahead of us.
			r.store.SupplementRecipes(map[market.Product]*market.Recipe{p: rec})
			r.log.Debug().Str("product", p.String()).Str("species", species).Msg("recipe taken from local catalog")
			return r.store.Recipe(p), nil
		}
	}
	return nil, fmt.Errorf("%w: no recipe for %s", apperr.ErrRecipeNotFound, p)
}

// Knows reports whether a recipe for p is in the store or the catalog, without storing anything.
func (r *Resolver) Knows(p market.Product) bool {
	if r.store.Recipe(p) != nil {
		return true
	}
	if r.catalog == nil {
		return false
	}
	species, team := r.Identity()
	return r.catalog.RecipesFor(species, team)[p] != nil
}

// Supplement fills recipe gaps in the store from the catalog and reports whether anything was added.
func (r *Resolver) Supplement() bool {
	if r.catalog == nil {
		return false
	}
	species, team := r.Identity()
	recipes := r.catalog.RecipesFor(species, team)
	if len(recipes) == 0 {
		return false
	}
	return r.store.SupplementRecipes(recipes)
}

// CanProducePremium reports whether inventory covers every ingredient of rec. When it does not, the returned map holds
// the missing amount of each short ingredient. A nil recipe is never producible.
func CanProducePremium(rec *market.Recipe, inventory map[market.Product]int) (bool, map[market.Product]int) {
	if rec == nil {
		return false, nil
	}
	var shortfall map[market.Product]int
	for p, required := range rec.Ingredients {
		if have := inventory[p]; have < required {
			if shortfall == nil {
				shortfall = make(map[market.Product]int)
			}
			shortfall[p] = required - have
		}
	}
	return len(shortfall) == 0, shortfall
}
