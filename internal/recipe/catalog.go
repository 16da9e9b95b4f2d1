// Package recipe resolves production recipes from the account state, falling back to a local catalog file.
package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"avobot-go/internal/apperr"
	"avobot-go/internal/market"
)

// Alias maps a team or species description onto a canonical catalog key.
// Team rules match when the normalized team contains every entry of TeamContains.
// Species rules match on an exact normalized value or on any listed substring.
type Alias struct {
	TeamContains    []string `yaml:"team_contains"`
	SpeciesContains []string `yaml:"species_contains"`
	SpeciesEquals   []string `yaml:"species_equals"`
	Key             string   `yaml:"key"`
}

// DefaultAliases is the alias table shipped with the bot; configuration may replace it.
var DefaultAliases = []Alias{
	{TeamContains: []string{"MINERO", "SEBO"}, Key: "MINEROSDELSEBO"},
	{TeamContains: []string{"MINERO", "GUACATRON"}, Key: "MINEROSDELSEBO"},
	{SpeciesEquals: []string{"PREMIUM"}, Key: "MINEROSDELSEBO"},
	{SpeciesContains: []string{"MINERO"}, Key: "MINEROSDELSEBO"},
}

// Catalog supplies recipes keyed by species and team.
type Catalog interface {
	RecipesFor(species, team string) map[market.Product]*market.Recipe
}

// FileCatalog is a Catalog backed by a JSON document of species -> entries.
type FileCatalog struct {
	bySpecies map[string]map[market.Product]*market.Recipe
	aliases   []Alias
}

const catalogSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "additionalProperties": {
      "type": "object",
      "required": ["producto"],
      "properties": {
        "producto": {"type": "string", "minLength": 1},
        "ingredientes": {
          "type": ["object", "null"],
          "additionalProperties": {"type": "integer", "minimum": 0}
        },
        "bonusPremium": {"type": ["number", "null"]}
      }
    }
  }
}`

var compiledCatalogSchema = jsonschema.MustCompileString("catalog.schema.json", catalogSchema)

type catalogEntry struct {
	Product      string         `json:"producto"`
	Ingredients  map[string]int `json:"ingredientes"`
	PremiumBonus *float64       `json:"bonusPremium"`
}

// NewFileCatalog builds an in-memory catalog, mostly for tests and for callers that already decoded the data.
func NewFileCatalog(bySpecies map[string]map[market.Product]*market.Recipe, aliases []Alias) *FileCatalog {
	normalized := make(map[string]map[market.Product]*market.Recipe, len(bySpecies))
	for species, recipes := range bySpecies {
		normalized[normalizeKey(species)] = recipes
	}
	return &FileCatalog{bySpecies: normalized, aliases: aliases}
}

// LoadCatalog reads the catalog file. A missing file yields an empty catalog; a malformed one is a configuration error.
func LoadCatalog(path string, aliases []Alias) (*FileCatalog, error) {
	if aliases == nil {
		aliases = DefaultAliases
	}
	if path == "" {
		return NewFileCatalog(nil, aliases), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewFileCatalog(nil, aliases), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read recipe catalog: %v", apperr.ErrConfigurationInvalid, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode recipe catalog: %v", apperr.ErrConfigurationInvalid, err)
	}
	if err := compiledCatalogSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: recipe catalog %s: %v", apperr.ErrConfigurationInvalid, path, err)
	}

	var raw map[string]map[string]catalogEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode recipe catalog: %v", apperr.ErrConfigurationInvalid, err)
	}

	bySpecies := make(map[string]map[market.Product]*market.Recipe, len(raw))
	for species, entries := range raw {
		recipes := make(map[market.Product]*market.Recipe, len(entries))
		for _, entry := range entries {
			product := market.ParseProduct(entry.Product)
			if product == "" {
				continue
			}
			recipes[product] = entry.toRecipe()
		}
		bySpecies[species] = recipes
	}
	return NewFileCatalog(bySpecies, aliases), nil
}

func (e catalogEntry) toRecipe() *market.Recipe {
	r := &market.Recipe{Kind: market.Basic, PremiumBonus: e.PremiumBonus}
	for name, qty := range e.Ingredients {
		p := market.ParseProduct(name)
		if p == "" {
			continue
		}
		if r.Ingredients == nil {
			r.Ingredients = make(map[market.Product]int, len(e.Ingredients))
		}
		r.Ingredients[p] = qty
	}
	if len(r.Ingredients) > 0 {
		r.Kind = market.Premium
	}
	return r
}

// RecipesFor returns a copy of the recipes registered for the species deduced from (species, team).
func (c *FileCatalog) RecipesFor(species, team string) map[market.Product]*market.Recipe {
	key := c.Key(species, team)
	if key == "" {
		return nil
	}
	recipes := c.bySpecies[key]
	if len(recipes) == 0 {
		return nil
	}
	out := make(map[market.Product]*market.Recipe, len(recipes))
	for p, r := range recipes {
		out[p] = r.Clone()
	}
	return out
}

// Key deduces the normalized catalog key. Team aliases win over species aliases.
func (c *FileCatalog) Key(species, team string) string {
	if t := normalizeKey(team); t != "" {
		for _, a := range c.aliases {
			if len(a.TeamContains) > 0 && containsAll(t, a.TeamContains) {
				return normalizeKey(a.Key)
			}
		}
	}
	s := normalizeKey(species)
	if s == "" {
		return ""
	}
	for _, a := range c.aliases {
		for _, eq := range a.SpeciesEquals {
			if s == normalizeKey(eq) {
				return normalizeKey(a.Key)
			}
		}
		for _, sub := range a.SpeciesContains {
			if n := normalizeKey(sub); n != "" && strings.Contains(s, n) {
				return normalizeKey(a.Key)
			}
		}
	}
	return s
}

func containsAll(s string, parts []string) bool {
	for _, part := range parts {
		if !strings.Contains(s, normalizeKey(part)) {
			return false
		}
	}
	return true
}

// normalizeKey upper-cases and strips separators.
func normalizeKey(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
}
