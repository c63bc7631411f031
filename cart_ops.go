package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/pricing"
)

// ──────────────────────────────────────────────────
// Cart
// ──────────────────────────────────────────────────

// Cart returns the owner's cart priced under the engine policy. An owner who
// has never added anything gets an empty cart at version 0.
func (e *Engine) Cart(ctx context.Context, ownerID string) (*cart.Snapshot, error) {
	c, err := e.loadCart(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	snap := c.Snapshot(e.policy)
	return &snap, nil
}

// AddToCart scans qty units of productRef into the cart. expectedVersion is
// the cart version the caller last read.
func (e *Engine) AddToCart(ctx context.Context, ownerID string, expectedVersion int64, productRef string, qty int64) (*cart.Snapshot, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	productRef = strings.TrimSpace(productRef)
	if productRef == "" {
		return nil, ValidationError{Field: "product_ref", Message: "is required"}
	}

	product, err := e.catalog.GetProduct(ctx, productRef)
	if err != nil {
		return nil, err
	}
	if product.Price.Currency != e.policy.Currency {
		return nil, ErrCurrencyMismatch
	}

	return e.mutateCart(ctx, ownerID, expectedVersion, func(c *cart.Cart) error {
		_, err := c.Add(*product, qty)
		return err
	})
}

// UpdateCartItem sets the quantity of a line. A quantity of zero removes it.
// A raised quantity is checked against the product's current stock.
func (e *Engine) UpdateCartItem(ctx context.Context, ownerID string, expectedVersion int64, itemID id.CartItemID, qty int64) (*cart.Snapshot, error) {
	return e.mutateCart(ctx, ownerID, expectedVersion, func(c *cart.Cart) error {
		if qty > 0 {
			item, ok := c.Item(itemID)
			if !ok {
				return ErrCartItemNotFound
			}
			product, err := e.catalog.GetProduct(ctx, item.ProductRef)
			if err != nil {
				return err
			}
			if qty > product.Stock {
				return ErrInsufficientStock
			}
		}
		return c.UpdateQuantity(itemID, qty)
	})
}

// checkStock re-reads every line of snap from the catalog and fails with
// ErrInsufficientStock if any quantity is no longer available.
func (e *Engine) checkStock(ctx context.Context, snap cart.Snapshot) error {
	for _, item := range snap.Items {
		product, err := e.catalog.GetProduct(ctx, item.ProductRef)
		if err != nil {
			return err
		}
		if item.Quantity > product.Stock {
			return fmt.Errorf("%w: %s has %d, cart wants %d", ErrInsufficientStock, item.ProductRef, product.Stock, item.Quantity)
		}
	}
	return nil
}

// RemoveCartItem deletes a line from the cart.
func (e *Engine) RemoveCartItem(ctx context.Context, ownerID string, expectedVersion int64, itemID id.CartItemID) (*cart.Snapshot, error) {
	return e.mutateCart(ctx, ownerID, expectedVersion, func(c *cart.Cart) error {
		return c.Remove(itemID)
	})
}

// ClearCart empties the cart.
func (e *Engine) ClearCart(ctx context.Context, ownerID string, expectedVersion int64) (*cart.Snapshot, error) {
	return e.mutateCart(ctx, ownerID, expectedVersion, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

// mutateCart applies fn to the owner's cart if the caller's version is
// current, then saves it with a version check so a concurrent writer that
// slipped in between is detected by the store.
func (e *Engine) mutateCart(ctx context.Context, ownerID string, expectedVersion int64, fn func(*cart.Cart) error) (*cart.Snapshot, error) {
	c, err := e.loadCart(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if c.Version != expectedVersion {
		return nil, ErrStaleCart
	}

	if err := fn(c); err != nil {
		return nil, err
	}
	if _, err := pricing.ComputeChecked(c.Lines(), e.policy); err != nil {
		return nil, err
	}

	if err := e.store.SaveCart(ctx, c, expectedVersion); err != nil {
		return nil, err
	}

	snap := c.Snapshot(e.policy)
	e.plugins.EmitCartUpdated(ctx, &snap)
	return &snap, nil
}

func (e *Engine) loadCart(ctx context.Context, ownerID string) (*cart.Cart, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ValidationError{Field: "owner_id", Message: "is required"}
	}

	c, err := e.store.GetCart(ctx, ownerID)
	if errors.Is(err, ErrCartNotFound) {
		return cart.New(ownerID), nil
	}
	return c, err
}
