package trading

import (
	"strings"
	"time"

	"avobot-go/internal/event"
	"avobot-go/internal/journal"
	"avobot-go/internal/market"
	"avobot-go/internal/metrics"
	"avobot-go/internal/state"
)

var _ event.Handler = (*Client)(nil)

// Handle routes one inbound event into the store.
func (c *Client) Handle(ev event.Event) {
	if ev == nil {
		return
	}
	metrics.InboundEventsTotal.WithLabelValues(string(ev.Kind())).Inc()

	switch e := ev.(type) {
	case event.LoginOK:
		c.onLogin(e)
	case event.Fill:
		c.onFill(e)
	case event.Ticker:
		c.store.RegisterPrice(e.Product, e.Mid)
	case event.OfferReceived:
		c.onOffer(e.Offer)
	case event.Error:
		c.log.Warn().Str("code", e.Code).Str("reason", e.Reason).Msg("exchange error")
	case event.OrderAck:
		c.onOrderAck(e)
	case event.InventoryUpdate:
		c.store.ReplaceInventory(e.Inventory)
	case event.BalanceUpdate:
		c.store.SetBalance(e.Balance)
	case event.EventDelta:
		c.log.Info().Str("type", e.Type).Msg("market event")
	case event.Broadcast:
		c.log.Info().Str("message", e.Message).Msg("broadcast")
	case event.GlobalPerformanceReport:
		c.log.Info().Int("trades", e.TotalTrades).Float64("volume", e.TotalVolume).Msg("global performance")
	case event.ConnectionLost:
		c.onConnectionLost(e)
	}
}

func (c *Client) onLogin(e event.LoginOK) {
	c.store.SetInitialBalance(e.Balance)
	// The bootstrap is authoritative: orders still in flight from before it no longer hold units back.
	c.store.ClearReservations()
	c.store.ReplaceInventory(e.Inventory)
	c.store.AssignRecipes(e.Recipes)

	species := strings.TrimSpace(e.Species)
	if species == "" {
		species = c.settings.Species
	}
	team := strings.TrimSpace(e.Team)
	if team == "" {
		team = c.settings.Team
	}
	c.resolver.SetIdentity(species, team)
	if c.resolver.Supplement() {
		c.log.Info().Str("species", species).Msg("recipes completed from local catalog")
	}

	authorized := e.AuthorizedProducts
	if len(authorized) == 0 {
		authorized = market.SortedProducts(c.store.Recipes())
	}
	c.store.AssignAuthorizedProducts(authorized)
	c.store.AssignRole(e.Role)

	c.log.Info().
		Str("team", team).
		Str("species", species).
		Float64("balance", e.Balance).
		Int("authorized", len(authorized)).
		Bool("role", e.Role != nil).
		Msg("login ok")
}

func (c *Client) onFill(e event.Fill) {
	_ = c.store.Update(func(l *state.Ledger) error {
		l.ApplyFill(e.Side, e.Product, e.Quantity, e.Price)
		return nil
	})
	if c.journal != nil {
		c.journal.Record(journal.Entry{Fill: e, Ts: time.Now().UTC()})
	}
	c.log.Info().
		Str("side", string(e.Side)).
		Str("product", e.Product.String()).
		Int("qty", e.Quantity).
		Float64("px", e.Price).
		Msg("fill")
}

func (c *Client) onOffer(o market.Offer) {
	if o.OfferID == "" {
		return
	}
	c.storeOffer(o)
	c.log.Info().
		Str("offer", o.OfferID).
		Str("product", o.Product.String()).
		Int("qty", o.QuantityRequested).
		Float64("max_px", o.MaxPrice).
		Str("buyer", o.Buyer).
		Msg("offer received")
}

// Acks with these statuses end an order without a fill.
var terminalAckStatuses = map[string]struct{}{
	"REJECTED":  {},
	"CANCELLED": {},
	"CANCELED":  {},
	"EXPIRED":   {},
}

func (c *Client) onOrderAck(e event.OrderAck) {
	status := strings.ToUpper(strings.TrimSpace(e.Status))
	if _, done := terminalAckStatuses[status]; done {
		released := false
		_ = c.store.Update(func(l *state.Ledger) error {
			released = l.Release(e.ClientOrderID)
			return nil
		})
		c.log.Warn().Str("clOrdID", e.ClientOrderID).Str("status", status).Bool("released", released).Msg("order ended without fill")
		return
	}
	c.log.Info().Str("clOrdID", e.ClientOrderID).Str("status", status).Msg("order ack")
}
