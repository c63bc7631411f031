// Package order defines the immutable priced snapshot a cart is frozen into
// at checkout, and the status machine it moves through afterwards.
package order

import (
	"errors"
	"time"

	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/types"
)

var (
	ErrEmptyCart = errors.New("checkout: cart is empty")
	ErrNotFound  = errors.New("checkout: order not found")
)

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusExitIssued     Status = "exit_issued"
	StatusExited         Status = "exited"
	StatusCancelled      Status = "cancelled"
	StatusPaymentFailed  Status = "payment_failed"
)

var transitions = map[Status][]Status{
	StatusPendingPayment: {StatusPaid, StatusCancelled, StatusPaymentFailed},
	StatusPaid:           {StatusExitIssued},
	StatusExitIssued:     {StatusExited},
}

// CanTransition reports whether the status machine allows moving s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsSettled reports whether payment has been captured for the order,
// whatever happened after.
func (s Status) IsSettled() bool {
	switch s {
	case StatusPaid, StatusExitIssued, StatusExited:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPaid, StatusExitIssued, StatusExited, StatusCancelled, StatusPaymentFailed:
		return true
	}
	return false
}

// Item is a copied, priced order line. Nothing here refers back to the cart.
type Item struct {
	ID         id.OrderItemID `json:"id"`
	ProductRef string         `json:"product_ref"`
	Name       string         `json:"name"`
	SKU        string         `json:"sku,omitempty"`
	UnitPrice  types.Money    `json:"unit_price"`
	Quantity   int64          `json:"quantity"`
	Subtotal   types.Money    `json:"subtotal"`
}

// Order is created once from a cart snapshot. Only Status and the status
// timestamps change afterwards.
type Order struct {
	types.Entity
	ID             id.OrderID  `json:"id"`
	Number         string      `json:"number"`
	OwnerID        string      `json:"owner_id"`
	CartID         id.CartID   `json:"cart_id"`
	CartVersion    int64       `json:"cart_version"`
	Items          []Item      `json:"items"`
	Subtotal       types.Money `json:"subtotal"`
	Tax            types.Money `json:"tax"`
	Total          types.Money `json:"total"`
	TaxRatePercent string      `json:"tax_rate_percent"`
	Currency       string      `json:"currency"`
	Status         Status      `json:"status"`
	ExpiresAt      time.Time   `json:"expires_at"`
	PaidAt         *time.Time  `json:"paid_at,omitempty"`
	ExitedAt       *time.Time  `json:"exited_at,omitempty"`
	ClosedAt       *time.Time  `json:"closed_at,omitempty"`
}

// ItemCount returns the number of units across all lines.
func (o *Order) ItemCount() int64 {
	var n int64
	for _, i := range o.Items {
		n += i.Quantity
	}
	return n
}

// IsExpired reports whether a pending order has outlived its payment window.
func (o *Order) IsExpired(now time.Time) bool {
	return o.Status == StatusPendingPayment && !o.ExpiresAt.IsZero() && !now.Before(o.ExpiresAt)
}

// Apply records a transition on the in-memory copy, setting the timestamp
// that belongs to the new status. Stores call it after a successful
// compare-and-set so every backend stamps the same fields.
func (o *Order) Apply(next Status, at time.Time) {
	at = at.UTC()
	o.Status = next
	o.UpdatedAt = at
	switch next {
	case StatusPaid:
		o.PaidAt = &at
	case StatusExited:
		o.ExitedAt = &at
	case StatusCancelled, StatusPaymentFailed:
		o.ClosedAt = &at
	}
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}

// ListOpts filters ListOrders.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
