// Package state owns the local mirror of the account: balance, inventory, prices, recipes, authorization and role.
package state

import (
	"sort"
	"sync"

	"avobot-go/internal/market"
)

// AccountState is a detached copy of everything the Store tracks.
type AccountState struct {
	Balance            float64
	InitialBalance     float64
	Inventory          map[market.Product]int
	Prices             map[market.Product]float64
	Recipes            map[market.Product]*market.Recipe
	AuthorizedProducts []market.Product
	Role               *market.TeamRole
}

// NewAccountState returns an empty state with allocated maps.
func NewAccountState() AccountState {
	return AccountState{
		Inventory: make(map[market.Product]int),
		Prices:    make(map[market.Product]float64),
		Recipes:   make(map[market.Product]*market.Recipe),
	}
}

// Clone deep-copies the state.
func (s AccountState) Clone() AccountState {
	out := NewAccountState()
	out.Balance = s.Balance
	out.InitialBalance = s.InitialBalance
	for p, q := range s.Inventory {
		out.Inventory[p] = q
	}
	for p, px := range s.Prices {
		out.Prices[p] = px
	}
	for p, r := range s.Recipes {
		if r != nil {
			out.Recipes[p] = r.Clone()
		}
	}
	if len(s.AuthorizedProducts) > 0 {
		out.AuthorizedProducts = append([]market.Product(nil), s.AuthorizedProducts...)
	}
	out.Role = s.Role.Clone()
	return out
}

// Store is the single source of truth for the account. Every method runs under one exclusive lock and hands out copies.
type Store struct {
	mu     sync.Mutex
	ledger Ledger
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{ledger: newLedger()}
}

// Update runs fn with exclusive access to the ledger so check-then-act sequences cannot interleave with other mutators.
// fn must finish its checks before mutating; the ledger is not rolled back when fn returns an error.
func (s *Store) Update(fn func(*Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.ledger)
}

// SetInitialBalance sets the balance and, the first time only, the P&L baseline. It reports whether the baseline was set.
func (s *Store) SetInitialBalance(v float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.SetInitialBalance(v)
}

func (s *Store) SetBalance(v float64) {
	s.mu.Lock()
	s.ledger.balance = v
	s.mu.Unlock()
}

func (s *Store) AdjustBalance(delta float64) {
	s.mu.Lock()
	s.ledger.balance += delta
	s.mu.Unlock()
}

func (s *Store) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.balance
}

func (s *Store) InitialBalance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.initialBalance
}

// ReplaceInventory swaps in a new inventory; negative quantities clamp to zero and empty products are dropped.
func (s *Store) ReplaceInventory(inv map[market.Product]int) {
	s.mu.Lock()
	s.ledger.ReplaceInventory(inv)
	s.mu.Unlock()
}

// ClearReservations drops every sale reservation.
func (s *Store) ClearReservations() {
	s.mu.Lock()
	s.ledger.ClearReservations()
	s.mu.Unlock()
}

// Known reports whether p is authorized, has a recipe or appears in the inventory.
func (s *Store) Known(p market.Product) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledger.authorized[p]; ok {
		return true
	}
	if _, ok := s.ledger.recipes[p]; ok {
		return true
	}
	_, ok := s.ledger.inventory[p]
	return ok
}

func (s *Store) AddInventory(p market.Product, qty int) {
	s.mu.Lock()
	s.ledger.AddInventory(p, qty)
	s.mu.Unlock()
}

// SubtractInventory removes qty without clamping; the result may go negative.
func (s *Store) SubtractInventory(p market.Product, qty int) {
	s.mu.Lock()
	s.ledger.SubtractInventory(p, qty)
	s.mu.Unlock()
}

// Available returns the held quantity of p, 0 when absent.
func (s *Store) Available(p market.Product) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Available(p)
}

// Sellable returns the held quantity of p minus units reserved by in-flight sell orders.
func (s *Store) Sellable(p market.Product) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Sellable(p)
}

// Inventory returns a copy of the inventory.
func (s *Store) Inventory() map[market.Product]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Inventory()
}

func (s *Store) RegisterPrice(p market.Product, mid float64) {
	if p == "" {
		return
	}
	s.mu.Lock()
	s.ledger.prices[p] = mid
	s.mu.Unlock()
}

// ReferencePrice returns the last observed mid of p, 0 when absent.
func (s *Store) ReferencePrice(p market.Product) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.ReferencePrice(p)
}

// Prices returns a copy of the price book.
func (s *Store) Prices() map[market.Product]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[market.Product]float64, len(s.ledger.prices))
	for p, px := range s.ledger.prices {
		out[p] = px
	}
	return out
}

func (s *Store) AssignRecipe(p market.Product, r *market.Recipe) {
	s.mu.Lock()
	s.ledger.AssignRecipe(p, r)
	s.mu.Unlock()
}

// AssignRecipes replaces the whole recipe book.
func (s *Store) AssignRecipes(recipes map[market.Product]*market.Recipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.recipes = make(map[market.Product]*market.Recipe, len(recipes))
	for p, r := range recipes {
		s.ledger.AssignRecipe(p, r)
	}
}

// SupplementRecipes inserts recipes only for products that have none and reports whether anything was added.
func (s *Store) SupplementRecipes(recipes map[market.Product]*market.Recipe) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for p, r := range recipes {
		if p == "" || r == nil {
			continue
		}
		if existing := s.ledger.recipes[p]; existing != nil {
			continue
		}
		s.ledger.recipes[p] = r.Clone()
		changed = true
	}
	return changed
}

// Recipe returns a copy of the recipe for p, or nil.
func (s *Store) Recipe(p market.Product) *market.Recipe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Recipe(p)
}

// Recipes returns a copy of the recipe book.
func (s *Store) Recipes() map[market.Product]*market.Recipe {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[market.Product]*market.Recipe, len(s.ledger.recipes))
	for p, r := range s.ledger.recipes {
		out[p] = r.Clone()
	}
	return out
}

// AssignAuthorizedProducts replaces the authorized set.
func (s *Store) AssignAuthorizedProducts(products []market.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.authorized = make(map[market.Product]struct{}, len(products))
	for _, p := range products {
		if p != "" {
			s.ledger.authorized[p] = struct{}{}
		}
	}
}

func (s *Store) Authorized(p market.Product) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Authorized(p)
}

// AuthorizedProducts returns the authorized set in lexical order.
func (s *Store) AuthorizedProducts() []market.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.AuthorizedProducts()
}

func (s *Store) AssignRole(role *market.TeamRole) {
	s.mu.Lock()
	s.ledger.role = role.Clone()
	s.mu.Unlock()
}

// Role returns a copy of the assigned role, or nil before login.
func (s *Store) Role() *market.TeamRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Role()
}

// InventoryValue marks every held quantity at its last observed price.
func (s *Store) InventoryValue() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.inventoryValue()
}

// ProfitAndLoss returns equity change versus the initial balance as a percentage, 0 without a positive baseline.
func (s *Store) ProfitAndLoss() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger.initialBalance <= 0 {
		return 0
	}
	equity := s.ledger.balance + s.ledger.inventoryValue()
	return (equity - s.ledger.initialBalance) / s.ledger.initialBalance * 100
}

// Snapshot returns a detached copy of the whole account state.
func (s *Store) Snapshot() AccountState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.export()
}

// CopyFrom overwrites every field from src in one critical section. Sale reservations are session bookkeeping; they
// survive up to the restored holdings.
func (s *Store) CopyFrom(src AccountState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.restore(src)
}

// Ledger is the lock-free core of the Store. It is only reachable inside Store.Update.
type Ledger struct {
	balance        float64
	initialBalance float64
	initialSet     bool
	inventory      map[market.Product]int
	prices         map[market.Product]float64
	recipes        map[market.Product]*market.Recipe
	authorized     map[market.Product]struct{}
	role           *market.TeamRole
	reservations   map[string]reservation
	reserveSeq     uint64
}

type reservation struct {
	product market.Product
	qty     int
	seq     uint64
}

func newLedger() Ledger {
	return Ledger{
		inventory:    make(map[market.Product]int),
		prices:       make(map[market.Product]float64),
		recipes:      make(map[market.Product]*market.Recipe),
		authorized:   make(map[market.Product]struct{}),
		reservations: make(map[string]reservation),
	}
}

func (l *Ledger) SetInitialBalance(v float64) bool {
	l.balance = v
	if l.initialSet {
		return false
	}
	l.initialBalance = v
	l.initialSet = true
	return true
}

func (l *Ledger) Balance() float64 { return l.balance }

func (l *Ledger) AdjustBalance(delta float64) { l.balance += delta }

func (l *Ledger) Available(p market.Product) int { return l.inventory[p] }

// Inventory returns a copy of the inventory.
func (l *Ledger) Inventory() map[market.Product]int {
	out := make(map[market.Product]int, len(l.inventory))
	for p, q := range l.inventory {
		out[p] = q
	}
	return out
}

func (l *Ledger) AddInventory(p market.Product, qty int) {
	if p == "" {
		return
	}
	l.inventory[p] += qty
}

func (l *Ledger) SubtractInventory(p market.Product, qty int) {
	if p == "" {
		return
	}
	l.inventory[p] -= qty
}

func (l *Ledger) ReplaceInventory(inv map[market.Product]int) {
	l.inventory = make(map[market.Product]int, len(inv))
	for p, q := range inv {
		if p == "" {
			continue
		}
		if q < 0 {
			q = 0
		}
		l.inventory[p] = q
	}
	l.clampReservations()
}

func (l *Ledger) ReferencePrice(p market.Product) float64 { return l.prices[p] }

func (l *Ledger) AssignRecipe(p market.Product, r *market.Recipe) {
	if p == "" || r == nil {
		return
	}
	l.recipes[p] = r.Clone()
}

func (l *Ledger) Recipe(p market.Product) *market.Recipe { return l.recipes[p].Clone() }

func (l *Ledger) Authorized(p market.Product) bool {
	_, ok := l.authorized[p]
	return p != "" && ok
}

func (l *Ledger) AuthorizedProducts() []market.Product {
	out := make([]market.Product, 0, len(l.authorized))
	for p := range l.authorized {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (l *Ledger) Role() *market.TeamRole { return l.role.Clone() }

// HasRole reports whether a role has been assigned.
func (l *Ledger) HasRole() bool { return l.role != nil }

// Reserved returns the units of p held back for in-flight sell orders.
func (l *Ledger) Reserved(p market.Product) int {
	total := 0
	for _, r := range l.reservations {
		if r.product == p {
			total += r.qty
		}
	}
	return total
}

// Sellable is the inventory of p not already promised to an in-flight sell order.
func (l *Ledger) Sellable(p market.Product) int {
	return l.inventory[p] - l.Reserved(p)
}

// Reserve holds qty units of p for the sell order id.
func (l *Ledger) Reserve(id string, p market.Product, qty int) {
	l.reserveSeq++
	l.reservations[id] = reservation{product: p, qty: qty, seq: l.reserveSeq}
}

// ClearReservations forgets every in-flight sell reservation.
func (l *Ledger) ClearReservations() {
	clear(l.reservations)
}

// Release drops the reservation for id, if any.
func (l *Ledger) Release(id string) bool {
	if _, ok := l.reservations[id]; !ok {
		return false
	}
	delete(l.reservations, id)
	return true
}

// ApplyFill settles an executed order. Sell fills consume reservations on that product oldest id first.
func (l *Ledger) ApplyFill(side market.Side, p market.Product, qty int, price float64) {
	total := price * float64(qty)
	switch side {
	case market.Buy:
		l.balance -= total
		l.AddInventory(p, qty)
	case market.Sell:
		l.balance += total
		l.SubtractInventory(p, qty)
		l.settleReservations(p, qty)
	}
}

func (l *Ledger) settleReservations(p market.Product, qty int) {
	for _, id := range l.reservationIDs(p) {
		if qty <= 0 {
			return
		}
		qty = l.trim(id, qty)
	}
}

// clampReservations trims, newest first, reservations that exceed the units now held.
func (l *Ledger) clampReservations() {
	excess := make(map[market.Product]int)
	for _, r := range l.reservations {
		excess[r.product] += r.qty
	}
	for p, reserved := range excess {
		over := reserved - max(l.inventory[p], 0)
		if over <= 0 {
			continue
		}
		ids := l.reservationIDs(p)
		for i := len(ids) - 1; i >= 0 && over > 0; i-- {
			over = l.trim(ids[i], over)
		}
	}
}

// trim removes up to qty units from reservation id and returns what is left of qty.
func (l *Ledger) trim(id string, qty int) int {
	r := l.reservations[id]
	if r.qty <= qty {
		delete(l.reservations, id)
		return qty - r.qty
	}
	r.qty -= qty
	l.reservations[id] = r
	return 0
}

// reservationIDs lists the reservations on p in the order they were made.
func (l *Ledger) reservationIDs(p market.Product) []string {
	ids := make([]string, 0, len(l.reservations))
	for id, r := range l.reservations {
		if r.product == p {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return l.reservations[ids[i]].seq < l.reservations[ids[j]].seq })
	return ids
}

func (l *Ledger) inventoryValue() float64 {
	total := 0.0
	for p, q := range l.inventory {
		total += float64(q) * l.prices[p]
	}
	return total
}

func (l *Ledger) export() AccountState {
	out := NewAccountState()
	out.Balance = l.balance
	out.InitialBalance = l.initialBalance
	for p, q := range l.inventory {
		out.Inventory[p] = q
	}
	for p, px := range l.prices {
		out.Prices[p] = px
	}
	for p, r := range l.recipes {
		out.Recipes[p] = r.Clone()
	}
	if len(l.authorized) > 0 {
		out.AuthorizedProducts = l.AuthorizedProducts()
	}
	out.Role = l.role.Clone()
	return out
}

func (l *Ledger) restore(src AccountState) {
	src = src.Clone()
	l.balance = src.Balance
	l.initialBalance = src.InitialBalance
	l.initialSet = true
	l.inventory = src.Inventory
	l.prices = src.Prices
	l.recipes = src.Recipes
	l.authorized = make(map[market.Product]struct{}, len(src.AuthorizedProducts))
	for _, p := range src.AuthorizedProducts {
		l.authorized[p] = struct{}{}
	}
	l.role = src.Role
	l.clampReservations()
}
