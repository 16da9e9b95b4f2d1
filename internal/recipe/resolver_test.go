package recipe

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"avobot-go/internal/apperr"
	"avobot-go/internal/market"
	"avobot-go/internal/state"
)

func testCatalog() *FileCatalog {
	return NewFileCatalog(map[string]map[market.Product]*market.Recipe{
		"MINEROSDELSEBO": {
			"GUACA":     {Kind: market.Basic},
			"PALTA_OIL": {Kind: market.Premium, Ingredients: map[market.Product]int{"GUACA": 5}},
		},
	}, DefaultAliases)
}

func TestResolvePrefersStore(t *testing.T) {
	store := state.NewStore()
	store.AssignRecipe("GUACA", &market.Recipe{Kind: market.Basic, PremiumBonus: market.Float(2)})
	res := NewResolver(store, testCatalog(), "premium", "", zerolog.Nop())

	rec, err := res.Resolve("GUACA")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if rec.Bonus() != 2 {
		t.Fatalf("expected store recipe, got %+v", rec)
	}
}

func TestResolveFallsBackToCatalogAndPersists(t *testing.T) {
	store := state.NewStore()
	res := NewResolver(store, testCatalog(), "", "Mineros del Sebo", zerolog.Nop())

	rec, err := res.Resolve("PALTA_OIL")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if rec.Kind != market.Premium {
		t.Fatalf("unexpected recipe %+v", rec)
	}
	if store.Recipe("PALTA_OIL") == nil {
		t.Fatalf("catalog hit should be stored")
	}
}

func TestResolveNotFound(t *testing.T) {
	store := state.NewStore()
	res := NewResolver(store, testCatalog(), "avocultores", "", zerolog.Nop())
	if _, err := res.Resolve("PALTA_OIL"); !errors.Is(err, apperr.ErrRecipeNotFound) {
		t.Fatalf("expected recipe not found, got %v", err)
	}

	res = NewResolver(store, nil, "", "", zerolog.Nop())
	if _, err := res.Resolve("GUACA"); !errors.Is(err, apperr.ErrRecipeNotFound) {
		t.Fatalf("expected recipe not found without catalog, got %v", err)
	}
}

func TestSupplementUsesIdentity(t *testing.T) {
	store := state.NewStore()
	res := NewResolver(store, testCatalog(), "", "", zerolog.Nop())
	if res.Supplement() {
		t.Fatalf("no identity should add nothing")
	}
	res.SetIdentity("PREMIUM", "")
	if !res.Supplement() {
		t.Fatalf("expected recipes to be added")
	}
	if len(store.Recipes()) != 2 {
		t.Fatalf("expected 2 recipes, got %d", len(store.Recipes()))
	}
}

func TestCanProducePremium(t *testing.T) {
	rec := &market.Recipe{Kind: market.Premium, Ingredients: map[market.Product]int{"GUACA": 5, "SEBO": 2}}

	ok, shortfall := CanProducePremium(rec, map[market.Product]int{"GUACA": 5, "SEBO": 3})
	if !ok || shortfall != nil {
		t.Fatalf("expected producible, got %v %v", ok, shortfall)
	}

	ok, shortfall = CanProducePremium(rec, map[market.Product]int{"GUACA": 1})
	if ok {
		t.Fatalf("expected shortfall")
	}
	expected := map[market.Product]int{"GUACA": 4, "SEBO": 2}
	if !reflect.DeepEqual(shortfall, expected) {
		t.Fatalf("unexpected shortfall %v", shortfall)
	}

	if ok, _ := CanProducePremium(&market.Recipe{Kind: market.Basic}, nil); !ok {
		t.Fatalf("recipe without ingredients is always producible")
	}
	if ok, _ := CanProducePremium(nil, nil); ok {
		t.Fatalf("nil recipe is never producible")
	}
}
