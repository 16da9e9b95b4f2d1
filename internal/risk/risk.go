// Package risk holds the pre-trade checks applied before an order leaves the process.
package risk

import (
	"avobot-go/internal/apperr"
	"avobot-go/internal/market"
)

// MinReferencePrice is the floor used to estimate the cost of a buy when no price has been observed.
const MinReferencePrice = 1.0

// EstimatedCost returns max(referencePrice, MinReferencePrice) * qty.
func EstimatedCost(referencePrice float64, qty int) float64 {
	if referencePrice < MinReferencePrice {
		referencePrice = MinReferencePrice
	}
	return referencePrice * float64(qty)
}

// Limits gates orders against the funds and units the account holds.
type Limits struct {
	Balance float64
}

// AllowBuy fails with InsufficientFunds when the estimated cost exceeds the balance.
func (l Limits) AllowBuy(referencePrice float64, qty int) error {
	cost := EstimatedCost(referencePrice, qty)
	if l.Balance < cost {
		return &apperr.InsufficientFundsError{Balance: l.Balance, Required: cost}
	}
	return nil
}

// AllowSell fails with InsufficientInventory when fewer than qty units are available.
func AllowSell(p market.Product, available, qty int) error {
	if available < qty {
		return &apperr.InsufficientInventoryError{Product: p.String(), Available: available, Requested: qty}
	}
	return nil
}

// Quantity rejects non-positive order sizes.
func Quantity(qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be positive, got %d", qty)
	}
	return nil
}
