// Package store defines the persistence contract every checkout backend
// implements.
package store

import (
	"context"

	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
)

// Store is the unified storage interface for checkout entities. Status
// changes go through compare-and-set methods so concurrent callers touching
// the same cart, order or token are linearised by the backend itself.
type Store interface {
	cart.Store
	order.Store
	payment.Store
	exittoken.Store

	// Migrate creates or upgrades the schema.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
