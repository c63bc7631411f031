package order

import (
	"context"
	"time"

	"github.com/xraph/checkout/id"
)

type Store interface {
	// CreateOrder inserts a new order. A clash on the order number returns
	// ErrAlreadyExists so the caller can draw a new one.
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, orderID id.OrderID) (*Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*Order, error)
	ListOrders(ctx context.Context, ownerID string, opts ListOpts) ([]*Order, error)

	// TransitionOrder moves the order from one status to another only if it is
	// still in from. Losing that race returns ErrConcurrentUpdate.
	TransitionOrder(ctx context.Context, orderID id.OrderID, from, to Status, at time.Time) error

	// ListExpiredPending returns pending orders whose ExpiresAt is not after before.
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*Order, error)
}
