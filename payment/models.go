// Package payment tracks payment attempts against an order and reconciles the
// provider's asynchronous confirmations with them.
package payment

import (
	"errors"
	"time"

	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/types"
)

var (
	ErrNotFound       = errors.New("checkout: payment not found")
	ErrAmountMismatch = errors.New("checkout: confirmed amount does not match order total")
	ErrConflict       = errors.New("checkout: payment event conflicts with order state")
	ErrInvalidEvent   = errors.New("checkout: invalid payment event")
)

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// Payment is one attempt to collect an order's total through a provider.
// Reference is the idempotency key shared with the provider.
type Payment struct {
	types.Entity
	ID            id.PaymentID `json:"id"`
	OrderID       id.OrderID   `json:"order_id"`
	Provider      string       `json:"provider"`
	Method        string       `json:"method"`
	Reference     string       `json:"reference"`
	Handle        string       `json:"handle,omitempty"`
	ClientSecret  string       `json:"client_secret,omitempty"`
	RedirectURL   string       `json:"redirect_url,omitempty"`
	Amount        types.Money  `json:"amount"`
	Status        Status       `json:"status"`
	TransactionID string       `json:"transaction_id,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	NeedsReview   bool         `json:"needs_review"`
	ReviewReason  string       `json:"review_reason,omitempty"`
	ConfirmedAt   *time.Time   `json:"confirmed_at,omitempty"`
}

// Clone returns a copy of the payment.
func (p *Payment) Clone() *Payment {
	cp := *p
	return &cp
}

// EventStatus is the outcome a provider reports.
type EventStatus string

const (
	EventSuccess EventStatus = "success"
	EventFailure EventStatus = "failure"
)

// Event is an inbound confirmation from the provider. The same event may be
// delivered more than once and in any order relative to others.
type Event struct {
	Provider      string      `json:"provider,omitempty"`
	Reference     string      `json:"reference"`
	OrderID       id.OrderID  `json:"order_id"`
	Amount        types.Money `json:"amount"`
	Status        EventStatus `json:"status"`
	TransactionID string      `json:"transaction_id,omitempty"`
	Reason        string      `json:"reason,omitempty"`
}

// Validate checks the event carries what reconciliation needs.
func (e Event) Validate() error {
	switch {
	case e.Reference == "":
		return errors.Join(ErrInvalidEvent, errors.New("reference is required"))
	case e.OrderID.IsNil():
		return errors.Join(ErrInvalidEvent, errors.New("order_id is required"))
	case e.Status != EventSuccess && e.Status != EventFailure:
		return errors.Join(ErrInvalidEvent, errors.New("status must be success or failure"))
	case e.Amount.Currency == "":
		return errors.Join(ErrInvalidEvent, errors.New("amount currency is required"))
	}
	return nil
}
