// Package cart holds the shopper's mutable pre-checkout selection.
//
// Every mutation bumps Version by exactly one. Callers pass the version they
// last read; the store rejects the write when another device got there first.
package cart

import (
	"errors"
	"slices"

	"github.com/xraph/checkout/catalog"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/pricing"
	"github.com/xraph/checkout/types"
)

var (
	ErrInvalidQuantity = errors.New("checkout: quantity must be at least 1")
	ErrItemNotFound    = errors.New("checkout: cart item not found")
	ErrStale           = errors.New("checkout: cart was modified concurrently")
	ErrNotFound        = errors.New("checkout: cart not found")
)

// Item is one product line in a cart. UnitPrice is captured when the item is
// added and re-captured when more of the same product is merged in.
type Item struct {
	ID         id.CartItemID `json:"id"`
	ProductRef string        `json:"product_ref"`
	Name       string        `json:"name"`
	SKU        string        `json:"sku,omitempty"`
	UnitPrice  types.Money   `json:"unit_price"`
	Quantity   int64         `json:"quantity"`
}

// Subtotal returns UnitPrice × Quantity.
func (i Item) Subtotal() types.Money {
	return i.UnitPrice.Multiply(i.Quantity)
}

// Cart is the single live cart of one owner. It is created lazily and cleared,
// never deleted.
type Cart struct {
	types.Entity
	ID      id.CartID `json:"id"`
	OwnerID string    `json:"owner_id"`
	Items   []Item    `json:"items"`
	Version int64     `json:"version"`
}

// New returns an empty, unsaved cart for owner at version 0.
func New(ownerID string) *Cart {
	return &Cart{
		Entity:  types.NewEntity(),
		ID:      id.NewCartID(),
		OwnerID: ownerID,
		Items:   []Item{},
	}
}

// Add puts qty units of p into the cart. A product already present is merged:
// quantities add up and the unit price becomes the catalog's current price.
func (c *Cart) Add(p catalog.Product, qty int64) (*Item, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	if idx := c.indexOfProduct(p.Ref); idx >= 0 {
		item := &c.Items[idx]
		merged := item.Quantity + qty
		if merged > p.Stock {
			return nil, catalog.ErrInsufficientStock
		}
		if _, err := p.Price.CheckedMultiply(merged); err != nil {
			return nil, err
		}
		item.Quantity = merged
		item.UnitPrice = p.Price
		item.Name = p.Name
		item.SKU = p.SKU
		c.bump()
		return item, nil
	}

	if qty > p.Stock {
		return nil, catalog.ErrInsufficientStock
	}
	if _, err := p.Price.CheckedMultiply(qty); err != nil {
		return nil, err
	}
	c.Items = append(c.Items, Item{
		ID:         id.NewCartItemID(),
		ProductRef: p.Ref,
		Name:       p.Name,
		SKU:        p.SKU,
		UnitPrice:  p.Price,
		Quantity:   qty,
	})
	c.bump()
	return &c.Items[len(c.Items)-1], nil
}

// UpdateQuantity sets the quantity of an existing line. Zero removes it.
// Stock is the caller's business; a quantity whose line total cannot be
// represented is refused with types.ErrOverflow.
func (c *Cart) UpdateQuantity(itemID id.CartItemID, qty int64) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	if qty == 0 {
		return c.Remove(itemID)
	}

	idx := c.indexOfItem(itemID)
	if idx < 0 {
		return ErrItemNotFound
	}
	if _, err := c.Items[idx].UnitPrice.CheckedMultiply(qty); err != nil {
		return err
	}
	c.Items[idx].Quantity = qty
	c.bump()
	return nil
}

// Remove deletes a line from the cart.
func (c *Cart) Remove(itemID id.CartItemID) error {
	idx := c.indexOfItem(itemID)
	if idx < 0 {
		return ErrItemNotFound
	}
	c.Items = slices.Delete(c.Items, idx, idx+1)
	c.bump()
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = []Item{}
	c.bump()
}

// Item returns the line with the given ID.
func (c *Cart) Item(itemID id.CartItemID) (*Item, bool) {
	idx := c.indexOfItem(itemID)
	if idx < 0 {
		return nil, false
	}
	return &c.Items[idx], true
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Lines converts the items to pricing lines.
func (c *Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(c.Items))
	for i, item := range c.Items {
		lines[i] = pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
	}
	return lines
}

// Snapshot returns an immutable copy of the cart priced under p.
func (c *Cart) Snapshot(p pricing.Policy) Snapshot {
	return Snapshot{
		CartID:  c.ID,
		OwnerID: c.OwnerID,
		Items:   slices.Clone(c.Items),
		Version: c.Version,
		Totals:  pricing.Compute(c.Lines(), p),
	}
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	if cp.Items == nil {
		cp.Items = []Item{}
	}
	return &cp
}

func (c *Cart) bump() {
	c.Version++
	c.Touch()
}

func (c *Cart) indexOfProduct(ref string) int {
	return slices.IndexFunc(c.Items, func(i Item) bool { return i.ProductRef == ref })
}

func (c *Cart) indexOfItem(itemID id.CartItemID) int {
	return slices.IndexFunc(c.Items, func(i Item) bool { return i.ID.Equal(itemID) })
}

// Snapshot is a priced, read-only view of a cart at one version.
type Snapshot struct {
	CartID  id.CartID      `json:"cart_id"`
	OwnerID string         `json:"owner_id"`
	Items   []Item         `json:"items"`
	Version int64          `json:"version"`
	Totals  pricing.Totals `json:"totals"`
}

// ItemCount returns the total number of units in the snapshot.
func (s Snapshot) ItemCount() int64 {
	var n int64
	for _, i := range s.Items {
		n += i.Quantity
	}
	return n
}
