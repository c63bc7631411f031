package cart

import "context"

// Store persists carts keyed by owner.
type Store interface {
	// GetCart returns the owner's cart or ErrNotFound.
	GetCart(ctx context.Context, ownerID string) (*Cart, error)

	// SaveCart writes c if the stored version still equals expectedVersion.
	// An expectedVersion of 0 inserts a new cart. A mismatch returns ErrStale.
	SaveCart(ctx context.Context, c *Cart, expectedVersion int64) error

	// ClearCart empties the owner's cart and bumps its version regardless of
	// what version the caller last saw. A missing cart is not an error.
	ClearCart(ctx context.Context, ownerID string) error
}
