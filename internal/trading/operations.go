package trading

import (
	"fmt"
	"strings"

	"avobot-go/internal/apperr"
	"avobot-go/internal/execution"
	"avobot-go/internal/market"
	"avobot-go/internal/metrics"
	"avobot-go/internal/production"
	"avobot-go/internal/recipe"
	"avobot-go/internal/risk"
	"avobot-go/internal/state"
)

const (
	defaultBuyMessage  = "Orden CLI"
	defaultSellMessage = "Venta CLI"
)

// Buy validates and dispatches a market buy. Settlement waits for the exchange fill.
func (c *Client) Buy(name string, qty int, message string) (execution.Order, error) {
	p, err := c.ResolveProduct(name)
	if err != nil {
		return execution.Order{}, err
	}
	if err := risk.Quantity(qty); err != nil {
		return execution.Order{}, err
	}

	var order execution.Order
	err = c.store.Update(func(l *state.Ledger) error {
		if !l.Authorized(p) {
			return unauthorized(name, l.AuthorizedProducts())
		}
		limits := risk.Limits{Balance: l.Balance()}
		if err := limits.AllowBuy(l.ReferencePrice(p), qty); err != nil {
			return err
		}
		order = c.newOrder(market.Buy, p, qty, message, defaultBuyMessage)
		return nil
	})
	if err != nil {
		return execution.Order{}, err
	}
	if err := c.dispatch(order); err != nil {
		return execution.Order{}, err
	}
	return order, nil
}

// Sell validates and dispatches a market sell. The units stay reserved until the fill settles them or the exchange
// rejects the order, so concurrent sells cannot promise the same unit twice.
func (c *Client) Sell(name string, qty int, message string) (execution.Order, error) {
	p, err := c.ResolveProduct(name)
	if err != nil {
		return execution.Order{}, err
	}
	if err := risk.Quantity(qty); err != nil {
		return execution.Order{}, err
	}

	var order execution.Order
	err = c.store.Update(func(l *state.Ledger) error {
		if !l.Authorized(p) {
			return unauthorized(name, l.AuthorizedProducts())
		}
		if err := risk.AllowSell(p, l.Sellable(p), qty); err != nil {
			return err
		}
		order = c.newOrder(market.Sell, p, qty, message, defaultSellMessage)
		l.Reserve(order.ClientOrderID, p, qty)
		return nil
	})
	if err != nil {
		return execution.Order{}, err
	}
	if err := c.dispatch(order); err != nil {
		c.releaseReservation(order.ClientOrderID)
		return execution.Order{}, err
	}
	return order, nil
}

// Produce runs one production of the named product and returns the units added to inventory. Premium production
// consumes the recipe's ingredients before the yield is computed.
func (c *Client) Produce(name string, premium bool) (int, error) {
	p, err := c.ResolveProduct(name)
	if err != nil {
		return 0, err
	}
	if !c.store.Authorized(p) {
		return 0, unauthorized(name, c.store.AuthorizedProducts())
	}
	rec, err := c.resolver.Resolve(p)
	if err != nil {
		return 0, err
	}

	units := 0
	err = c.store.Update(func(l *state.Ledger) error {
		if !l.Authorized(p) {
			return unauthorized(name, l.AuthorizedProducts())
		}
		if premium {
			held := make(map[market.Product]int, len(rec.Ingredients))
			for ing := range rec.Ingredients {
				held[ing] = l.Sellable(ing)
			}
			if ok, shortfall := recipe.CanProducePremium(rec, held); !ok {
				return &apperr.IngredientsError{Product: p.String(), Shortfall: shortfallNames(shortfall)}
			}
		}
		if !l.HasRole() {
			return apperr.ErrRoleUnavailable
		}
		if premium {
			for ing, qty := range rec.Ingredients {
				l.SubtractInventory(ing, qty)
			}
		}
		units = production.Yield(l.Role())
		if premium {
			units = production.ApplyPremiumBonus(units, rec)
		}
		l.AddInventory(p, units)
		return nil
	})
	if err != nil {
		return 0, err
	}

	mode := "basic"
	if premium {
		mode = "premium"
	}
	metrics.ProductionsTotal.WithLabelValues(p.String(), mode).Inc()
	metrics.ProductionUnitsTotal.WithLabelValues(p.String()).Add(float64(units))
	c.log.Info().Str("product", p.String()).Str("mode", mode).Int("units", units).Msg("produced")

	if err := c.conn.SendProductionUpdate(p, units); err != nil {
		return units, fmt.Errorf("production update for %s: %w", p, err)
	}
	return units, nil
}

// AcceptOffer answers a pending offer. The offer leaves the pending set whatever the outcome; an unknown id is a no-op.
func (c *Client) AcceptOffer(offerID string, accept bool) error {
	offerID = strings.TrimSpace(offerID)
	offer, ok := c.takeOffer(offerID)
	if !ok {
		c.log.Warn().Str("offer", offerID).Msg("offer not pending")
		return nil
	}

	qty := 0
	if accept {
		qty = offer.QuantityRequested
		err := c.store.Update(func(l *state.Ledger) error {
			if err := risk.AllowSell(offer.Product, l.Sellable(offer.Product), qty); err != nil {
				return err
			}
			l.SubtractInventory(offer.Product, qty)
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := c.conn.SendOfferResponse(offer.OfferID, accept, qty, offer.MaxPrice); err != nil {
		return fmt.Errorf("offer %s response: %w", offer.OfferID, err)
	}
	c.log.Info().Str("offer", offer.OfferID).Bool("accept", accept).Int("qty", qty).Float64("px", offer.MaxPrice).Msg("offer answered")
	return nil
}

func (c *Client) newOrder(side market.Side, p market.Product, qty int, message, fallback string) execution.Order {
	if strings.TrimSpace(message) == "" {
		message = fallback
	}
	return execution.Order{
		ClientOrderID: c.seq.Next(),
		Side:          side,
		Mode:          execution.Market,
		Product:       p,
		Qty:           qty,
		Message:       message,
	}
}

func (c *Client) dispatch(order execution.Order) error {
	if err := c.conn.SendOrder(order); err != nil {
		c.log.Error().Err(err).Str("clOrdID", order.ClientOrderID).Msg("order dispatch failed")
		return fmt.Errorf("send order %s: %w", order.ClientOrderID, err)
	}
	metrics.OrdersTotal.WithLabelValues(order.Product.String(), string(order.Side)).Inc()
	c.log.Info().
		Str("clOrdID", order.ClientOrderID).
		Str("side", string(order.Side)).
		Str("product", order.Product.String()).
		Int("qty", order.Qty).
		Msg("order sent")
	return nil
}

func (c *Client) releaseReservation(id string) {
	_ = c.store.Update(func(l *state.Ledger) error {
		l.Release(id)
		return nil
	})
}

func shortfallNames(m map[market.Product]int) map[string]int {
	out := make(map[string]int, len(m))
	for p, n := range m {
		out[p.String()] = n
	}
	return out
}
