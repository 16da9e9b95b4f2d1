package exchange

import (
	"encoding/json"
	"fmt"
	"strings"

	"avobot-go/internal/event"
	"avobot-go/internal/execution"
	"avobot-go/internal/market"
)

// Message types on the wire.
const (
	typeLogin            = "LOGIN"
	typeOrder            = "ORDER"
	typeProductionUpdate = "PRODUCTION_UPDATE"
	typeAcceptOffer      = "ACCEPT_OFFER"

	typeLoginOK           = "LOGIN_OK"
	typeFill              = "FILL"
	typeTicker            = "TICKER"
	typeOffer             = "OFFER"
	typeError             = "ERROR"
	typeOrderAck          = "ORDER_ACK"
	typeInventoryUpdate   = "INVENTORY_UPDATE"
	typeBalanceUpdate     = "BALANCE_UPDATE"
	typeEventDelta        = "EVENT_DELTA"
	typeBroadcast         = "BROADCAST_NOTIFICATION"
	typePerformanceReport = "GLOBAL_PERFORMANCE_REPORT"
)

type loginMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type orderMessage struct {
	Type string `json:"type"`
	execution.Order
}

type productionMessage struct {
	Type     string         `json:"type"`
	Product  market.Product `json:"product"`
	Quantity int            `json:"quantity"`
}

type acceptOfferMessage struct {
	Type            string  `json:"type"`
	OfferID         string  `json:"offerId"`
	Accept          bool    `json:"accept"`
	QuantityOffered int     `json:"quantityOffered"`
	PriceOffered    float64 `json:"priceOffered"`
}

type envelope struct {
	Type string `json:"type"`
}

type inboundLogin struct {
	CurrentBalance     float64                   `json:"currentBalance"`
	Inventory          map[string]int            `json:"inventory"`
	Recipes            map[string]*market.Recipe `json:"recipes"`
	Species            string                    `json:"species"`
	Team               string                    `json:"team"`
	AuthorizedProducts []string                  `json:"authorizedProducts"`
	Role               *market.TeamRole          `json:"role"`
}

type inboundFill struct {
	Side      string  `json:"side"`
	Product   string  `json:"product"`
	FillQty   int     `json:"fillQty"`
	FillPrice float64 `json:"fillPrice"`
}

type inboundTicker struct {
	Product string  `json:"product"`
	Mid     float64 `json:"mid"`
}

type inboundOffer struct {
	OfferID           string  `json:"offerId"`
	Product           string  `json:"product"`
	QuantityRequested int     `json:"quantityRequested"`
	MaxPrice          float64 `json:"maxPrice"`
	Buyer             string  `json:"buyer"`
}

type inboundError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type inboundAck struct {
	ClOrdID string `json:"clOrdID"`
	Status  string `json:"status"`
}

type inboundInventory struct {
	Inventory map[string]int `json:"inventory"`
}

type inboundBalance struct {
	Balance float64 `json:"balance"`
}

type inboundDelta struct {
	Event string `json:"event"`
}

type inboundBroadcast struct {
	Message string `json:"message"`
}

type inboundReport struct {
	TotalTrades int     `json:"totalTrades"`
	TotalVolume float64 `json:"totalVolume"`
}

// decode turns one text frame into an event. Unknown message types yield (nil, nil).
func decode(raw []byte) (event.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch strings.ToUpper(env.Type) {
	case typeLoginOK:
		var m inboundLogin
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return event.LoginOK{
			Balance:            m.CurrentBalance,
			Inventory:          products(m.Inventory),
			Recipes:            recipes(m.Recipes),
			Species:            m.Species,
			Team:               m.Team,
			AuthorizedProducts: productList(m.AuthorizedProducts),
			Role:               m.Role,
		}, nil
	case typeFill:
		var m inboundFill
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return event.Fill{
			Side:     market.Side(strings.ToUpper(m.Side)),
			Product:  market.ParseProduct(m.Product),
			Quantity: m.FillQty,
			Price:    m.FillPrice,
		}, nil
	case typeTicker:
		var m inboundTicker
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return event.Ticker{Product: market.ParseProduct(m.Product), Mid: m.Mid}, nil
	case typeOffer:
		var m inboundOffer
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return event.OfferReceived{Offer: market.Offer{
			OfferID:           m.OfferID,
			Product:           market.ParseProduct(m.Product),
			QuantityRequested: m.QuantityRequested,
			MaxPrice:          m.MaxPrice,
			Buyer:             m.Buyer,
		}}, nil
	case typeError:
		var m inboundError
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return event.Error{Code: m.Code, Reason: m.Reason}, nil
	case typeOrderAck:
		var m inboundAck
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return event.OrderAck{ClientOrderID: m.ClOrdID, Status: m.Status}, nil
	case typeInventoryUpdate:
		var m inboundInventory
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return event.InventoryUpdate{Inventory: products(m.Inventory)}, nil
	case typeBalanceUpdate:
		var m inboundBalance
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return event.BalanceUpdate{Balance: m.Balance}, nil
	case typeEventDelta:
		var m inboundDelta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return event.EventDelta{Type: m.Event}, nil
	case typeBroadcast:
		var m inboundBroadcast
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return event.Broadcast{Message: m.Message}, nil
	case typePerformanceReport:
		var m inboundReport
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return event.GlobalPerformanceReport{TotalTrades: m.TotalTrades, TotalVolume: m.TotalVolume}, nil
	}
	return nil, nil
}

func products(in map[string]int) map[market.Product]int {
	out := make(map[market.Product]int, len(in))
	for name, qty := range in {
		if p := market.ParseProduct(name); p != "" {
			out[p] = qty
		}
	}
	return out
}

func productList(in []string) []market.Product {
	if len(in) == 0 {
		return nil
	}
	out := make([]market.Product, 0, len(in))
	for _, name := range in {
		if p := market.ParseProduct(name); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func recipes(in map[string]*market.Recipe) map[market.Product]*market.Recipe {
	out := make(map[market.Product]*market.Recipe, len(in))
	for name, r := range in {
		p := market.ParseProduct(name)
		if p == "" || r == nil {
			continue
		}
		rec := &market.Recipe{Kind: market.RecipeKind(strings.ToUpper(string(r.Kind))), PremiumBonus: r.PremiumBonus}
		if len(r.Ingredients) > 0 {
			rec.Ingredients = make(map[market.Product]int, len(r.Ingredients))
			for ing, qty := range r.Ingredients {
				rec.Ingredients[market.ParseProduct(ing.String())] = qty
			}
		}
		if rec.Kind == "" {
			rec.Kind = market.Basic
			if len(rec.Ingredients) > 0 {
				rec.Kind = market.Premium
			}
		}
		out[p] = rec
	}
	return out
}
