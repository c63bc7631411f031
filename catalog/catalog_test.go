package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/checkout/catalog"
	"github.com/xraph/checkout/types"
)

func TestMemoryCatalog(t *testing.T) {
	ctx := context.Background()
	c := catalog.NewMemory(
		catalog.Product{Ref: "milk", Name: "Milk 1L", Price: types.INR(6000), Stock: 10},
		catalog.Product{Ref: "bread", Name: "Bread", Price: types.INR(4000), Stock: 5},
	)

	p, err := c.GetProduct(ctx, "milk")
	require.NoError(t, err)
	assert.Equal(t, "Milk 1L", p.Name)

	_, err = c.GetProduct(ctx, "eggs")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	require.NoError(t, c.SetPrice("milk", types.INR(6500)))
	p, err = c.GetProduct(ctx, "milk")
	require.NoError(t, err)
	assert.Equal(t, int64(6500), p.Price.Amount)

	assert.ErrorIs(t, c.SetPrice("eggs", types.INR(1)), catalog.ErrProductNotFound)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "bread", list[0].Ref)
}

func TestMemoryDecrementStock(t *testing.T) {
	ctx := context.Background()
	c := catalog.NewMemory(catalog.Product{Ref: "milk", Name: "Milk 1L", Price: types.INR(6000), Stock: 10})

	var _ catalog.Inventory = c

	require.NoError(t, c.DecrementStock(ctx, "milk", 4))
	p, err := c.GetProduct(ctx, "milk")
	require.NoError(t, err)
	assert.Equal(t, int64(6), p.Stock)

	assert.ErrorIs(t, c.DecrementStock(ctx, "milk", 7), catalog.ErrInsufficientStock)
	p, err = c.GetProduct(ctx, "milk")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Stock, "oversell empties the shelf")

	assert.ErrorIs(t, c.DecrementStock(ctx, "eggs", 1), catalog.ErrProductNotFound)
}
