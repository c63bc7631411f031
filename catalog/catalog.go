// Package catalog is the read-only product lookup the cart consults when a
// shopper scans an item.
package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/xraph/checkout/types"
)

var (
	ErrProductNotFound   = errors.New("checkout: product not found")
	ErrInsufficientStock = errors.New("checkout: insufficient stock")
)

// Product is the catalog's view of a sellable item.
type Product struct {
	Ref   string      `json:"ref"`
	Name  string      `json:"name"`
	SKU   string      `json:"sku,omitempty"`
	Price types.Money `json:"price"`
	Stock int64       `json:"stock"`
}

// Catalog resolves product references to their current name, price and stock.
type Catalog interface {
	GetProduct(ctx context.Context, ref string) (*Product, error)
}

// Inventory is implemented by catalogs that track stock. A paid order takes
// its quantities out through DecrementStock exactly once.
type Inventory interface {
	DecrementStock(ctx context.Context, ref string, qty int64) error
}

// Memory is a Catalog held in process. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	products map[string]Product
}

// NewMemory returns a Memory catalog seeded with products.
func NewMemory(products ...Product) *Memory {
	m := &Memory{products: make(map[string]Product, len(products))}
	for _, p := range products {
		m.products[p.Ref] = p
	}
	return m
}

// GetProduct returns a copy of the product stored under ref.
func (m *Memory) GetProduct(_ context.Context, ref string) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[ref]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

// DecrementStock takes qty units of ref out of stock. If less than qty is
// left, stock drops to zero and ErrInsufficientStock reports the oversell.
func (m *Memory) DecrementStock(_ context.Context, ref string, qty int64) error {
	if qty <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[ref]
	if !ok {
		return ErrProductNotFound
	}
	if p.Stock < qty {
		p.Stock = 0
		m.products[ref] = p
		return ErrInsufficientStock
	}
	p.Stock -= qty
	m.products[ref] = p
	return nil
}

// Put inserts or replaces a product.
func (m *Memory) Put(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.Ref] = p
}

// SetPrice changes the price of an existing product.
func (m *Memory) SetPrice(ref string, price types.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[ref]
	if !ok {
		return ErrProductNotFound
	}
	p.Price = price
	m.products[ref] = p
	return nil
}

// List returns all products ordered by reference.
func (m *Memory) List() []Product {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}
