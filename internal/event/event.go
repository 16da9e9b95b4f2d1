// Package event models inbound exchange messages as a closed set of variants routed through one Handler.
package event

import "avobot-go/internal/market"

// Kind names an inbound event variant; it doubles as the metrics label.
type Kind string

const (
	KindLoginOK                 Kind = "login_ok"
	KindFill                    Kind = "fill"
	KindTicker                  Kind = "ticker"
	KindOffer                   Kind = "offer"
	KindError                   Kind = "error"
	KindOrderAck                Kind = "order_ack"
	KindInventoryUpdate         Kind = "inventory_update"
	KindBalanceUpdate           Kind = "balance_update"
	KindEventDelta              Kind = "event_delta"
	KindBroadcast               Kind = "broadcast"
	KindConnectionLost          Kind = "connection_lost"
	KindGlobalPerformanceReport Kind = "global_performance_report"
)

// Event is implemented only by the variants in this package.
type Event interface {
	Kind() Kind
	sealed()
}

// Handler consumes inbound events.
type Handler interface {
	Handle(Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event)

// Handle calls f(ev).
func (f HandlerFunc) Handle(ev Event) { f(ev) }

// LoginOK carries the full account bootstrap sent after authentication.
type LoginOK struct {
	Balance            float64
	Inventory          map[market.Product]int
	Recipes            map[market.Product]*market.Recipe
	Species            string
	Team               string
	AuthorizedProducts []market.Product
	Role               *market.TeamRole
}

// Fill confirms an executed order.
type Fill struct {
	Side     market.Side    `json:"side"`
	Product  market.Product `json:"product"`
	Quantity int            `json:"quantity"`
	Price    float64        `json:"price"`
}

// Ticker reports the latest mid price of a product.
type Ticker struct {
	Product market.Product
	Mid     float64
}

// OfferReceived wraps a buy proposal from another participant.
type OfferReceived struct {
	Offer market.Offer
}

// Error is an exchange-side rejection or failure notice.
type Error struct {
	Code   string
	Reason string
}

// OrderAck acknowledges a submitted order.
type OrderAck struct {
	ClientOrderID string
	Status        string
}

// InventoryUpdate replaces the whole inventory.
type InventoryUpdate struct {
	Inventory map[market.Product]int
}

// BalanceUpdate replaces the balance.
type BalanceUpdate struct {
	Balance float64
}

// EventDelta announces a market event.
type EventDelta struct {
	Type string
}

// Broadcast is a free-text notice sent to every participant.
type Broadcast struct {
	Message string
}

// ConnectionLost is raised by the connector when the session drops.
type ConnectionLost struct {
	Cause error
}

// GlobalPerformanceReport summarizes exchange-wide activity.
type GlobalPerformanceReport struct {
	TotalTrades int
	TotalVolume float64
}

func (LoginOK) Kind() Kind                 { return KindLoginOK }
func (Fill) Kind() Kind                    { return KindFill }
func (Ticker) Kind() Kind                  { return KindTicker }
func (OfferReceived) Kind() Kind           { return KindOffer }
func (Error) Kind() Kind                   { return KindError }
func (OrderAck) Kind() Kind                { return KindOrderAck }
func (InventoryUpdate) Kind() Kind         { return KindInventoryUpdate }
func (BalanceUpdate) Kind() Kind           { return KindBalanceUpdate }
func (EventDelta) Kind() Kind              { return KindEventDelta }
func (Broadcast) Kind() Kind               { return KindBroadcast }
func (ConnectionLost) Kind() Kind          { return KindConnectionLost }
func (GlobalPerformanceReport) Kind() Kind { return KindGlobalPerformanceReport }

func (LoginOK) sealed()                 {}
func (Fill) sealed()                    {}
func (Ticker) sealed()                  {}
func (OfferReceived) sealed()           {}
func (Error) sealed()                   {}
func (OrderAck) sealed()                {}
func (InventoryUpdate) sealed()         {}
func (BalanceUpdate) sealed()           {}
func (EventDelta) sealed()              {}
func (Broadcast) sealed()               {}
func (ConnectionLost) sealed()          {}
func (GlobalPerformanceReport) sealed() {}
