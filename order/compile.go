package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/pricing"
	"github.com/xraph/checkout/types"
)

// Compile freezes a cart snapshot into a pending order. Prices and product
// references are copied by value; the totals come from pricing.ComputeChecked
// under the same policy the cart was displayed with, so an order is never
// created with a wrapped amount.
func Compile(snap cart.Snapshot, p pricing.Policy, now time.Time, ttl time.Duration) (*Order, error) {
	if len(snap.Items) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]Item, len(snap.Items))
	lines := make([]pricing.Line, len(snap.Items))
	for i, ci := range snap.Items {
		if ci.Quantity <= 0 {
			return nil, cart.ErrInvalidQuantity
		}
		subtotal, err := ci.UnitPrice.CheckedMultiply(ci.Quantity)
		if err != nil {
			return nil, fmt.Errorf("order: line %s: %w", ci.ProductRef, err)
		}
		items[i] = Item{
			ID:         id.NewOrderItemID(),
			ProductRef: ci.ProductRef,
			Name:       ci.Name,
			SKU:        ci.SKU,
			UnitPrice:  ci.UnitPrice,
			Quantity:   ci.Quantity,
			Subtotal:   subtotal,
		}
		lines[i] = pricing.Line{UnitPrice: ci.UnitPrice, Quantity: ci.Quantity}
	}

	totals, err := pricing.ComputeChecked(lines, p)
	if err != nil {
		return nil, fmt.Errorf("order: %w", err)
	}

	number, err := NewNumber(now)
	if err != nil {
		return nil, err
	}

	o := &Order{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewOrderID(),
		Number:         number,
		OwnerID:        snap.OwnerID,
		CartID:         snap.CartID,
		CartVersion:    snap.Version,
		Items:          items,
		Subtotal:       totals.Subtotal,
		Tax:            totals.Tax,
		Total:          totals.Total,
		TaxRatePercent: p.RatePercent.String(),
		Currency:       p.Currency,
		Status:         StatusPendingPayment,
	}
	if ttl > 0 {
		o.ExpiresAt = now.UTC().Add(ttl)
	}
	return o, nil
}

// CheckTotals verifies the monetary invariants of a compiled order.
func (o *Order) CheckTotals() error {
	subtotal := types.Zero(o.Currency)
	for _, item := range o.Items {
		if !item.Subtotal.Equal(item.UnitPrice.Multiply(item.Quantity)) {
			return fmt.Errorf("order %s: line %s subtotal %d != %d x %d",
				o.Number, item.ProductRef, item.Subtotal.Amount, item.UnitPrice.Amount, item.Quantity)
		}
		subtotal = subtotal.Add(item.Subtotal)
	}
	if !subtotal.Equal(o.Subtotal) {
		return fmt.Errorf("order %s: subtotal %d != sum of lines %d", o.Number, o.Subtotal.Amount, subtotal.Amount)
	}
	if !o.Subtotal.Add(o.Tax).Equal(o.Total) {
		return fmt.Errorf("order %s: total %d != subtotal %d + tax %d", o.Number, o.Total.Amount, o.Subtotal.Amount, o.Tax.Amount)
	}
	return nil
}

var numberSpace = big.NewInt(1_000_000)

// NewNumber returns a human-facing order number of the form ORD-YYYYMMDD-NNNNNN.
func NewNumber(t time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, numberSpace)
	if err != nil {
		return "", fmt.Errorf("order: generate number: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%06d", t.UTC().Format("20060102"), n.Int64()), nil
}
