package payment

import (
	"context"
	"time"

	"github.com/xraph/checkout/id"
)

type Store interface {
	// CreatePayment inserts an attempt. A second attempt with the same
	// (order, reference) returns ErrAlreadyExists.
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, paymentID id.PaymentID) (*Payment, error)
	GetPaymentByReference(ctx context.Context, orderID id.OrderID, reference string) (*Payment, error)
	ListPayments(ctx context.Context, orderID id.OrderID) ([]*Payment, error)

	// SupersedePayments fails every initiated attempt of the order except keep.
	SupersedePayments(ctx context.Context, orderID id.OrderID, keep id.PaymentID, reason string, at time.Time) (int64, error)

	// MarkOrderPaid moves the order pending_payment→paid and the payment
	// initiated→success as one step. If the order is no longer pending it
	// returns ErrConcurrentUpdate and changes nothing.
	MarkOrderPaid(ctx context.Context, orderID id.OrderID, paymentID id.PaymentID, transactionID string, at time.Time) error

	// MarkOrderPaymentFailed moves the order pending_payment→payment_failed and
	// the payment initiated→failed as one step, with the same race semantics.
	MarkOrderPaymentFailed(ctx context.Context, orderID id.OrderID, paymentID id.PaymentID, transactionID, reason string, at time.Time) error

	// FailPayment moves one attempt initiated→failed without touching the order.
	FailPayment(ctx context.Context, paymentID id.PaymentID, transactionID, reason string, at time.Time) error

	// FlagPayment marks an attempt for manual reconciliation.
	FlagPayment(ctx context.Context, paymentID id.PaymentID, reason string, at time.Time) error
}
