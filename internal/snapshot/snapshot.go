// Package snapshot persists and restores the account state as versioned, zstd-compressed JSON documents.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"avobot-go/internal/apperr"
	"avobot-go/internal/market"
	"avobot-go/internal/state"
)

// Version is the document version written by Save.
const Version = 1

const defaultDir = "snapshots"

// Document is the on-disk envelope.
type Document struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	State     StateV1   `json:"state"`
}

// StateV1 mirrors state.AccountState with stable field names.
type StateV1 struct {
	Balance            float64             `json:"balance"`
	InitialBalance     float64             `json:"initial_balance"`
	Inventory          map[string]int      `json:"inventory"`
	Prices             map[string]float64  `json:"prices"`
	Recipes            map[string]RecipeV1 `json:"recipes"`
	AuthorizedProducts []string            `json:"authorized_products"`
	Role               *RoleV1             `json:"role"`
}

type RecipeV1 struct {
	Kind         string         `json:"kind"`
	Ingredients  map[string]int `json:"ingredients,omitempty"`
	PremiumBonus *float64       `json:"premium_bonus,omitempty"`
}

type RoleV1 struct {
	Branches    *float64 `json:"branches,omitempty"`
	MaxDepth    *int     `json:"max_depth,omitempty"`
	Decay       *float64 `json:"decay,omitempty"`
	BaseEnergy  *float64 `json:"base_energy,omitempty"`
	LevelEnergy *float64 `json:"level_energy,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
}

// Manager writes snapshots under a base directory.
type Manager struct {
	dir string
	now func() time.Time
}

// NewManager returns a manager rooted at dir ("snapshots" when empty).
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = defaultDir
	}
	return &Manager{dir: dir, now: time.Now}
}


// Path resolves where a snapshot for destination goes. An empty destination or a directory gets a timestamped name.
func (m *Manager) Path(destination string) (string, error) {
	name := fmt.Sprintf("snapshot-%d.bin", m.now().UnixMilli())
	if destination == "" {
		if err := os.MkdirAll(m.dir, 0o755); err != nil {
			return "", apperr.Configuration("create snapshot dir: %v", err)
		}
		return filepath.Join(m.dir, name), nil
	}
	if info, err := os.Stat(destination); err == nil && info.IsDir() {
		return filepath.Join(destination, name), nil
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return "", apperr.Configuration("create snapshot dir: %v", err)
	}
	return destination, nil
}

// Save writes st and returns the concrete file path.
func (m *Manager) Save(st state.AccountState, destination string) (string, error) {
	path, err := m.Path(destination)
	if err != nil {
		return "", err
	}
	doc := Document{Version: Version, CreatedAt: m.now().UTC(), State: fromState(st)}
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", apperr.Configuration("encode snapshot: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return "", apperr.Configuration("write snapshot: %v", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeCompressed(tmp, payload); err != nil {
		tmp.Close()
		return "", apperr.Configuration("write snapshot: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperr.Configuration("write snapshot: %v", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", apperr.Configuration("write snapshot: %v", err)
	}
	return path, nil
}

func writeCompressed(w io.Writer, payload []byte) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := enc.Write(payload); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Load reads and validates a snapshot. The caller applies it with state.Store.CopyFrom.
func Load(path string) (state.AccountState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return state.AccountState{}, apperr.Configuration("no snapshot at %s", path)
	}
	if err != nil {
		return state.AccountState{}, apperr.Configuration("read snapshot: %v", err)
	}

	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return state.AccountState{}, corrupt(path, "unreadable compression stream", err)
	}
	defer dec.Close()
	payload, err := io.ReadAll(dec)
	if err != nil {
		return state.AccountState{}, corrupt(path, "unreadable compression stream", err)
	}

	if err := validate(payload); err != nil {
		return state.AccountState{}, corrupt(path, "payload does not match the account state shape", err)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return state.AccountState{}, corrupt(path, "payload does not match the account state shape", err)
	}
	if doc.Version != Version {
		return state.AccountState{}, corrupt(path, fmt.Sprintf("unsupported snapshot version %d", doc.Version), nil)
	}
	return doc.State.toState(), nil
}

func corrupt(path, reason string, err error) error {
	return &apperr.SnapshotCorruptError{Path: path, Reason: reason, Err: err}
}

func fromState(st state.AccountState) StateV1 {
	out := StateV1{
		Balance:        st.Balance,
		InitialBalance: st.InitialBalance,
		Inventory:      make(map[string]int, len(st.Inventory)),
		Prices:         make(map[string]float64, len(st.Prices)),
		Recipes:        make(map[string]RecipeV1, len(st.Recipes)),
	}
	for p, q := range st.Inventory {
		out.Inventory[string(p)] = q
	}
	for p, px := range st.Prices {
		out.Prices[string(p)] = px
	}
	for p, r := range st.Recipes {
		if r == nil {
			continue
		}
		rv := RecipeV1{Kind: string(r.Kind), PremiumBonus: r.PremiumBonus}
		if len(r.Ingredients) > 0 {
			rv.Ingredients = make(map[string]int, len(r.Ingredients))
			for ing, q := range r.Ingredients {
				rv.Ingredients[string(ing)] = q
			}
		}
		out.Recipes[string(p)] = rv
	}
	for _, p := range st.AuthorizedProducts {
		out.AuthorizedProducts = append(out.AuthorizedProducts, string(p))
	}
	if st.Role != nil {
		out.Role = &RoleV1{
			Branches:    st.Role.Branches,
			MaxDepth:    st.Role.MaxDepth,
			Decay:       st.Role.Decay,
			BaseEnergy:  st.Role.BaseEnergy,
			LevelEnergy: st.Role.LevelEnergy,
			Budget:      st.Role.Budget,
		}
	}
	return out
}

func (s StateV1) toState() state.AccountState {
	out := state.NewAccountState()
	out.Balance = s.Balance
	out.InitialBalance = s.InitialBalance
	for p, q := range s.Inventory {
		out.Inventory[market.Product(p)] = q
	}
	for p, px := range s.Prices {
		out.Prices[market.Product(p)] = px
	}
	for p, r := range s.Recipes {
		rec := &market.Recipe{Kind: market.RecipeKind(r.Kind), PremiumBonus: r.PremiumBonus}
		if len(r.Ingredients) > 0 {
			rec.Ingredients = make(map[market.Product]int, len(r.Ingredients))
			for ing, q := range r.Ingredients {
				rec.Ingredients[market.Product(ing)] = q
			}
		}
		out.Recipes[market.Product(p)] = rec
	}
	for _, p := range s.AuthorizedProducts {
		out.AuthorizedProducts = append(out.AuthorizedProducts, market.Product(p))
	}
	if s.Role != nil {
		out.Role = &market.TeamRole{
			Branches:    s.Role.Branches,
			MaxDepth:    s.Role.MaxDepth,
			Decay:       s.Role.Decay,
			BaseEnergy:  s.Role.BaseEnergy,
			LevelEnergy: s.Role.LevelEnergy,
			Budget:      s.Role.Budget,
		}
	}
	return out
}
