package trading

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"avobot-go/internal/apperr"
	"avobot-go/internal/event"
	"avobot-go/internal/execution"
	"avobot-go/internal/journal"
	"avobot-go/internal/market"
	"avobot-go/internal/recipe"
	"avobot-go/internal/state"
)

type offerResponse struct {
	OfferID string
	Accept  bool
	Qty     int
	Price   float64
}

type productionUpdate struct {
	Product market.Product
	Qty     int
}

type fakeConnector struct {
	mu          sync.Mutex
	listeners   []event.Handler
	connects    int
	logins      int
	orders      []execution.Order
	productions []productionUpdate
	responses   []offerResponse
	connectErr  error
	sendErr     error
}

func (f *fakeConnector) Connect(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeConnector) AddListener(h event.Handler) {
	f.mu.Lock()
	f.listeners = append(f.listeners, h)
	f.mu.Unlock()
}

func (f *fakeConnector) SendOrder(o execution.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeConnector) SendProductionUpdate(p market.Product, qty int) error {
	f.mu.Lock()
	f.productions = append(f.productions, productionUpdate{p, qty})
	f.mu.Unlock()
	return nil
}

func (f *fakeConnector) SendOfferResponse(id string, accept bool, qty int, price float64) error {
	f.mu.Lock()
	f.responses = append(f.responses, offerResponse{id, accept, qty, price})
	f.mu.Unlock()
	return nil
}

func (f *fakeConnector) SendLogin(string) error {
	f.mu.Lock()
	f.logins++
	f.mu.Unlock()
	return nil
}

func (f *fakeConnector) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeConnector) sentOrders() []execution.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]execution.Order(nil), f.orders...)
}

func testRole() *market.TeamRole {
	return &market.TeamRole{
		Branches:    market.Float(2),
		MaxDepth:    market.Int(2),
		Decay:       market.Float(0.5),
		BaseEnergy:  market.Float(3),
		LevelEnergy: market.Float(1),
	}
}

func testLogin() event.LoginOK {
	return event.LoginOK{
		Balance:   100,
		Inventory: map[market.Product]int{"GUACA": 7, "SEBO": 2},
		Recipes: map[market.Product]*market.Recipe{
			"GUACA":     {Kind: market.Basic},
			"SEBO":      {Kind: market.Basic},
			"PALTA_OIL": {Kind: market.Premium, Ingredients: map[market.Product]int{"GUACA": 5, "SEBO": 2}, PremiumBonus: market.Float(1.3)},
		},
		Team:               "Mineros del Sebo",
		AuthorizedProducts: []market.Product{"GUACA", "SEBO", "PALTA_OIL"},
		Role:               testRole(),
	}
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeConnector) {
	t.Helper()
	conn := &fakeConnector{}
	settings := Settings{APIKey: "key", Host: "ws://exchange", Team: "cfg-team", SnapshotsDir: t.TempDir()}
	client := New(state.NewStore(), conn, nil, settings, zerolog.Nop(), opts...)
	t.Cleanup(client.Close)
	return client, conn
}

func TestBuyInsufficientFundsLeavesStateUntouched(t *testing.T) {
	client, conn := newTestClient(t)
	client.Handle(testLogin())
	client.Handle(event.Ticker{Product: "GUACA", Mid: 30})
	before := client.Store().Snapshot()

	_, err := client.Buy("guaca", 4, "")
	var funds *apperr.InsufficientFundsError
	if !errors.As(err, &funds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if funds.Required != 120 || funds.Balance != 100 {
		t.Fatalf("unexpected payload %+v", funds)
	}
	if !reflect.DeepEqual(client.Store().Snapshot(), before) {
		t.Fatalf("state changed after failed buy")
	}
	if len(conn.sentOrders()) != 0 {
		t.Fatalf("no order should be dispatched")
	}
}

func TestBuyUsesPriceFloorAndDefaultMessage(t *testing.T) {
	client, conn := newTestClient(t)
	client.Handle(testLogin())

	order, err := client.Buy("sebo", 100, "  ")
	if err != nil {
		t.Fatalf("Buy returned error: %v", err)
	}
	if order.Side != market.Buy || order.Mode != execution.Market || order.Message != "Orden CLI" || order.Qty != 100 {
		t.Fatalf("unexpected order %+v", order)
	}
	if client.Store().Balance() != 100 || client.Store().Available("SEBO") != 2 {
		t.Fatalf("buy must wait for the fill to settle")
	}
	if _, err := client.Buy("sebo", 101, ""); !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected floor price of 1.0 to reject 101 units, got %v", err)
	}
	if len(conn.sentOrders()) != 1 {
		t.Fatalf("expected exactly one order, got %d", len(conn.sentOrders()))
	}
}

func TestOrderValidation(t *testing.T) {
	client, _ := newTestClient(t)
	client.Handle(testLogin())

	if _, err := client.Buy("", 1, ""); !errors.Is(err, apperr.ErrAuthorizationDenied) {
		t.Fatalf("empty product: expected authorization error, got %v", err)
	}
	if _, err := client.Buy("PITA", 1, ""); !errors.Is(err, apperr.ErrAuthorizationDenied) {
		t.Fatalf("unauthorized product: expected authorization error, got %v", err)
	}
	var unauthorizedErr *apperr.UnauthorizedError
	_, err := client.Sell("pita", 1, "")
	if !errors.As(err, &unauthorizedErr) || !reflect.DeepEqual(unauthorizedErr.Allowed, []string{"GUACA", "PALTA_OIL", "SEBO"}) {
		t.Fatalf("expected allowed list in error, got %v", err)
	}
	if _, err := client.Sell("guaca", 0, ""); !errors.Is(err, apperr.ErrInputValidation) {
		t.Fatalf("zero qty: expected validation error, got %v", err)
	}
}

func TestSellInsufficientInventory(t *testing.T) {
	client, conn := newTestClient(t)
	client.Handle(testLogin())

	_, err := client.Sell("guaca", 8, "")
	var inv *apperr.InsufficientInventoryError
	if !errors.As(err, &inv) || inv.Available != 7 || inv.Requested != 8 {
		t.Fatalf("expected insufficient inventory 7 vs 8, got %v", err)
	}
	if client.Store().Available("GUACA") != 7 || len(conn.sentOrders()) != 0 {
		t.Fatalf("failed sell must not touch state or dispatch")
	}
}

func TestConcurrentSellsOnSingleUnit(t *testing.T) {
	client, conn := newTestClient(t)
	client.Handle(testLogin())
	client.Handle(event.InventoryUpdate{Inventory: map[market.Product]int{"GUACA": 1}})

	const attempts = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Sell("GUACA", 1, "")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, apperr.ErrInsufficientInventory) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful sell, got %d", successes)
	}
	if len(conn.sentOrders()) != 1 {
		t.Fatalf("expected one dispatched order, got %d", len(conn.sentOrders()))
	}
}

func TestSellReservationLifecycle(t *testing.T) {
	client, conn := newTestClient(t)
	client.Handle(testLogin())

	order, err := client.Sell("guaca", 3, "")
	if err != nil {
		t.Fatalf("Sell returned error: %v", err)
	}
	if order.Message != "Venta CLI" {
		t.Fatalf("unexpected default message %q", order.Message)
	}
	if client.Sellable("GUACA") != 4 {
		t.Fatalf("expected 4 sellable units, got %d", client.Sellable("GUACA"))
	}

	client.Handle(event.Fill{Side: market.Sell, Product: "GUACA", Quantity: 3, Price: 10})
	if client.Store().Available("GUACA") != 4 || client.Sellable("GUACA") != 4 {
		t.Fatalf("fill should settle the reservation")
	}
	if client.Store().Balance() != 130 {
		t.Fatalf("expected balance 130, got %.2f", client.Store().Balance())
	}

	order, err = client.Sell("guaca", 4, "")
	if err != nil {
		t.Fatalf("Sell returned error: %v", err)
	}
	if client.Sellable("GUACA") != 0 {
		t.Fatalf("expected all units reserved")
	}
	client.Handle(event.OrderAck{ClientOrderID: order.ClientOrderID, Status: "rejected"})
	if client.Sellable("GUACA") != 4 {
		t.Fatalf("rejected order should release its units")
	}

	conn.mu.Lock()
	conn.sendErr = errors.New("socket closed")
	conn.mu.Unlock()
	if _, err := client.Sell("guaca", 2, ""); err == nil {
		t.Fatalf("expected dispatch failure")
	}
	if client.Sellable("GUACA") != 4 {
		t.Fatalf("failed dispatch should release its units")
	}
}

func TestLoginClearsStaleReservations(t *testing.T) {
	client, _ := newTestClient(t)
	client.Handle(testLogin())

	if _, err := client.Sell("guaca", 7, ""); err != nil {
		t.Fatalf("Sell returned error: %v", err)
	}
	client.Handle(event.Error{Code: "E_ORDER", Reason: "rejected"})
	if _, err := client.Sell("guaca", 1, ""); !errors.Is(err, apperr.ErrInsufficientInventory) {
		t.Fatalf("units should still be held back before the resync, got %v", err)
	}

	client.Handle(testLogin())
	if got := client.Sellable("GUACA"); got != 7 {
		t.Fatalf("sellable after login = %d, want 7", got)
	}
	if _, err := client.Sell("guaca", 1, ""); err != nil {
		t.Fatalf("Sell after login returned error: %v", err)
	}
}

func TestInventoryUpdateTrimsReservations(t *testing.T) {
	client, _ := newTestClient(t)
	client.Handle(testLogin())

	if _, err := client.Sell("guaca", 7, ""); err != nil {
		t.Fatalf("Sell returned error: %v", err)
	}
	client.Handle(event.InventoryUpdate{Inventory: map[market.Product]int{"GUACA": 2}})
	if got := client.Sellable("GUACA"); got != 0 {
		t.Fatalf("sellable = %d, want 0 while the remaining units are in flight", got)
	}
	client.Handle(event.Fill{Side: market.Sell, Product: "GUACA", Quantity: 2, Price: 1})
	client.Handle(event.InventoryUpdate{Inventory: map[market.Product]int{"GUACA": 5}})
	if got := client.Sellable("GUACA"); got != 5 {
		t.Fatalf("sellable after settle = %d, want 5", got)
	}
}

func TestResolveProductRejectsUnknownNames(t *testing.T) {
	client, _ := newTestClient(t)
	if _, err := client.ResolveProduct("guaca"); !errors.Is(err, apperr.ErrAuthorizationDenied) {
		t.Fatalf("nothing is known before login, got %v", err)
	}

	client.Handle(testLogin())
	if p, err := client.ResolveProduct(" palta-oil "); err != nil || p != "PALTA_OIL" {
		t.Fatalf("ResolveProduct = %q, %v", p, err)
	}
	var unauthorizedErr *apperr.UnauthorizedError
	if _, err := client.ResolveProduct("xyz"); !errors.As(err, &unauthorizedErr) || unauthorizedErr.Product != "xyz" {
		t.Fatalf("expected unauthorized xyz, got %v", err)
	}
}

func TestResolveProductAcceptsCatalogProducts(t *testing.T) {
	store := state.NewStore()
	catalog := recipe.NewFileCatalog(map[string]map[market.Product]*market.Recipe{
		"MINEROSDELSEBO": {"NUCLEO": {Kind: market.Basic}},
	}, recipe.DefaultAliases)
	resolver := recipe.NewResolver(store, catalog, "", "Mineros del Sebo", zerolog.Nop())
	client := New(store, &fakeConnector{}, resolver, Settings{SnapshotsDir: t.TempDir()}, zerolog.Nop())
	defer client.Close()

	if p, err := client.ResolveProduct("nucleo"); err != nil || p != "NUCLEO" {
		t.Fatalf("ResolveProduct = %q, %v", p, err)
	}
	if store.Recipe("NUCLEO") != nil {
		t.Fatalf("resolving a name must not copy catalog recipes into the store")
	}
}

func TestProducePremiumConsumesIngredients(t *testing.T) {
	client, conn := newTestClient(t)
	client.Handle(testLogin())

	units, err := client.Produce("palta-oil", true)
	if err != nil {
		t.Fatalf("Produce returned error: %v", err)
	}
	// yield = 3 + round(4*0.5*2) + round(5*0.25*4) = 12, bonus 1.3 -> 16
	if units != 16 {
		t.Fatalf("expected 16 units, got %d", units)
	}
	inv := client.Store().Inventory()
	if inv["GUACA"] != 2 || inv["SEBO"] != 0 || inv["PALTA_OIL"] != 16 {
		t.Fatalf("unexpected inventory %+v", inv)
	}
	if len(conn.productions) != 1 || conn.productions[0] != (productionUpdate{"PALTA_OIL", 16}) {
		t.Fatalf("expected production update, got %+v", conn.productions)
	}
}

func TestProducePremiumShortfall(t *testing.T) {
	client, conn := newTestClient(t)
	client.Handle(testLogin())
	client.Handle(event.InventoryUpdate{Inventory: map[market.Product]int{"GUACA": 5, "SEBO": 1}})
	before := client.Store().Snapshot()

	_, err := client.Produce("PALTA_OIL", true)
	var ingredients *apperr.IngredientsError
	if !errors.As(err, &ingredients) {
		t.Fatalf("expected ingredients error, got %v", err)
	}
	if !reflect.DeepEqual(ingredients.Shortfall, map[string]int{"SEBO": 1}) {
		t.Fatalf("unexpected shortfall %v", ingredients.Shortfall)
	}
	if !reflect.DeepEqual(client.Store().Snapshot(), before) {
		t.Fatalf("state changed after failed production")
	}
	if len(conn.productions) != 0 {
		t.Fatalf("no production update expected")
	}
}

func TestProduceBasicIgnoresIngredients(t *testing.T) {
	client, _ := newTestClient(t)
	client.Handle(testLogin())

	units, err := client.Produce("guaca", false)
	if err != nil {
		t.Fatalf("Produce returned error: %v", err)
	}
	if units != 12 || client.Store().Available("GUACA") != 19 {
		t.Fatalf("unexpected result units=%d inventory=%d", units, client.Store().Available("GUACA"))
	}
}

func TestProduceRequiresRoleAndRecipe(t *testing.T) {
	client, _ := newTestClient(t)
	login := testLogin()
	login.Role = nil
	client.Handle(login)
	before := client.Store().Snapshot()

	if _, err := client.Produce("guaca", false); !errors.Is(err, apperr.ErrRoleUnavailable) {
		t.Fatalf("expected role unavailable, got %v", err)
	}
	if !reflect.DeepEqual(client.Store().Snapshot(), before) {
		t.Fatalf("state changed without role")
	}

	client.Store().AssignAuthorizedProducts([]market.Product{"PITA"})
	if _, err := client.Produce("pita", false); !errors.Is(err, apperr.ErrRecipeNotFound) {
		t.Fatalf("expected recipe not found, got %v", err)
	}
}

func TestLoginSupplementsFromCatalogAndDefaultsAuthorization(t *testing.T) {
	store := state.NewStore()
	catalog := recipe.NewFileCatalog(map[string]map[market.Product]*market.Recipe{
		"MINEROSDELSEBO": {"NUCLEO": {Kind: market.Basic}},
	}, recipe.DefaultAliases)
	resolver := recipe.NewResolver(store, catalog, "", "", zerolog.Nop())
	conn := &fakeConnector{}
	client := New(store, conn, resolver, Settings{Team: "Mineros del Sebo"}, zerolog.Nop())
	defer client.Close()

	client.Handle(event.LoginOK{
		Balance: 50,
		Recipes: map[market.Product]*market.Recipe{"GUACA": {Kind: market.Basic}},
		Role:    testRole(),
	})

	if _, team := client.Identity(); team != "Mineros del Sebo" {
		t.Fatalf("expected configured team to be used, got %q", team)
	}
	if store.Recipe("NUCLEO") == nil {
		t.Fatalf("catalog recipe should be supplemented")
	}
	if got := store.AuthorizedProducts(); !reflect.DeepEqual(got, []market.Product{"GUACA", "NUCLEO"}) {
		t.Fatalf("expected authorization from recipes, got %v", got)
	}

	client.Handle(event.LoginOK{Balance: 80})
	if store.InitialBalance() != 50 || store.Balance() != 80 {
		t.Fatalf("baseline must stay at first login, got initial=%.2f balance=%.2f", store.InitialBalance(), store.Balance())
	}
}

func TestAcceptOffer(t *testing.T) {
	client, conn := newTestClient(t)
	client.Handle(testLogin())
	client.Handle(event.OfferReceived{Offer: market.Offer{OfferID: "OFF-1", Product: "GUACA", QuantityRequested: 3, MaxPrice: 25, Buyer: "team-b"}})
	client.Handle(event.OfferReceived{Offer: market.Offer{OfferID: "OFF-2", Product: "GUACA", QuantityRequested: 5, MaxPrice: 30}})
	client.Handle(event.OfferReceived{Offer: market.Offer{OfferID: "OFF-3", Product: "SEBO", QuantityRequested: 9}})
	if len(client.PendingOffers()) != 3 {
		t.Fatalf("expected 3 pending offers")
	}
	before := client.Store().Snapshot()

	if err := client.AcceptOffer("OFF-1", false); err != nil {
		t.Fatalf("reject returned error: %v", err)
	}
	if !reflect.DeepEqual(client.Store().Snapshot(), before) {
		t.Fatalf("reject must not change state")
	}
	if conn.responses[0] != (offerResponse{"OFF-1", false, 0, 25}) {
		t.Fatalf("unexpected reject response %+v", conn.responses[0])
	}

	if err := client.AcceptOffer("OFF-2", true); err != nil {
		t.Fatalf("accept returned error: %v", err)
	}
	if client.Store().Available("GUACA") != 2 {
		t.Fatalf("accept should subtract the requested quantity")
	}
	if conn.responses[1] != (offerResponse{"OFF-2", true, 5, 30}) {
		t.Fatalf("unexpected accept response %+v", conn.responses[1])
	}

	if err := client.AcceptOffer("OFF-3", true); !errors.Is(err, apperr.ErrInsufficientInventory) {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}
	if len(client.PendingOffers()) != 0 {
		t.Fatalf("every answered offer leaves the pending set")
	}
	if err := client.AcceptOffer("OFF-404", true); err != nil {
		t.Fatalf("unknown offer should be a no-op, got %v", err)
	}
	if len(conn.responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(conn.responses))
	}
}

func TestFillsAreJournaled(t *testing.T) {
	ledger := journal.NewLedger(4)
	client, _ := newTestClient(t, WithJournal(ledger))
	client.Handle(testLogin())
	client.Handle(event.Fill{Side: market.Buy, Product: "SEBO", Quantity: 2, Price: 5})

	entries := ledger.Snapshot()
	if len(entries) != 1 || entries[0].Product != "SEBO" || entries[0].Ts.IsZero() {
		t.Fatalf("unexpected journal %+v", entries)
	}
	if client.Store().Balance() != 90 || client.Store().Available("SEBO") != 4 {
		t.Fatalf("buy fill not settled")
	}
}

func TestConnectRegistersListenerOnce(t *testing.T) {
	client, conn := newTestClient(t)
	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if len(conn.listeners) != 1 {
		t.Fatalf("expected one listener, got %d", len(conn.listeners))
	}

	conn.connectErr = errors.New("refused")
	if err := client.Connect(ctx); !errors.Is(err, apperr.ErrConnectionFailed) {
		t.Fatalf("expected connection failure, got %v", err)
	}
}

func TestConnectionLostReconnectsOnce(t *testing.T) {
	client, conn := newTestClient(t, WithReconnectDelay(20*time.Millisecond))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	for i := 0; i < 5; i++ {
		client.Handle(event.ConnectionLost{Cause: errors.New("eof")})
	}
	if !client.Reconnecting() {
		t.Fatalf("expected a pending reconnect")
	}

	deadline := time.Now().Add(2 * time.Second)
	for client.Reconnecting() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if client.Reconnecting() {
		t.Fatalf("reconnect did not finish")
	}
	if got := conn.connectCount(); got != 2 {
		t.Fatalf("expected exactly one reconnect, got %d connects", got)
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	conn := &fakeConnector{}
	client := New(state.NewStore(), conn, nil, Settings{}, zerolog.Nop(), WithReconnectDelay(time.Hour))
	client.Handle(event.ConnectionLost{})
	client.Close()
	if conn.connectCount() != 0 {
		t.Fatalf("reconnect should not run after Close")
	}
}

func TestSnapshotRoundTripThroughClient(t *testing.T) {
	client, _ := newTestClient(t)
	client.Handle(testLogin())
	client.Handle(event.Ticker{Product: "GUACA", Mid: 12})
	want := client.Store().Snapshot()

	path, err := client.SaveSnapshot("")
	if err != nil {
		t.Fatalf("SaveSnapshot returned error: %v", err)
	}
	if filepath.Ext(path) != ".bin" {
		t.Fatalf("unexpected snapshot path %s", path)
	}

	client.Handle(event.InventoryUpdate{Inventory: map[market.Product]int{}})
	client.Store().SetBalance(1)
	if err := client.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}
	if !reflect.DeepEqual(client.Store().Snapshot(), want) {
		t.Fatalf("restored state differs")
	}
}

func TestResync(t *testing.T) {
	client, conn := newTestClient(t)
	if err := client.Resync(); err != nil {
		t.Fatalf("Resync returned error: %v", err)
	}
	if conn.logins != 1 {
		t.Fatalf("expected login to be resent")
	}
}
