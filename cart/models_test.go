package cart_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/catalog"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/pricing"
	"github.com/xraph/checkout/types"
)

var (
	apple  = catalog.Product{Ref: "apple", Name: "Apple", SKU: "APL-1", Price: types.INR(100), Stock: 50}
	banana = catalog.Product{Ref: "banana", Name: "Banana", Price: types.INR(50), Stock: 50}
)

func TestAdd(t *testing.T) {
	c := cart.New("user-1")
	assert.Equal(t, int64(0), c.Version)

	item, err := c.Add(apple, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), item.Quantity)
	assert.Equal(t, int64(1), c.Version)

	_, err = c.Add(banana, 3)
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
	assert.Equal(t, int64(2), c.Version)
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	for _, qty := range []int64{0, -1} {
		c := cart.New("user-1")
		_, err := c.Add(apple, qty)
		assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
		assert.Equal(t, int64(0), c.Version)
		assert.True(t, c.IsEmpty())
	}
}

func TestAddMergeRecapturesPrice(t *testing.T) {
	c := cart.New("user-1")
	_, err := c.Add(apple, 2)
	require.NoError(t, err)

	repriced := apple
	repriced.Price = types.INR(120)
	item, err := c.Add(repriced, 1)
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, int64(3), item.Quantity)
	assert.Equal(t, int64(120), item.UnitPrice.Amount)
	assert.Equal(t, int64(2), c.Version)
}

func TestAddChecksStock(t *testing.T) {
	c := cart.New("user-1")
	scarce := apple
	scarce.Stock = 3

	_, err := c.Add(scarce, 4)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)

	_, err = c.Add(scarce, 2)
	require.NoError(t, err)
	_, err = c.Add(scarce, 2)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Equal(t, int64(2), c.Items[0].Quantity)
}

func TestUpdateQuantity(t *testing.T) {
	c := cart.New("user-1")
	item, err := c.Add(apple, 2)
	require.NoError(t, err)
	itemID := item.ID

	require.NoError(t, c.UpdateQuantity(itemID, 5))
	got, ok := c.Item(itemID)
	require.True(t, ok)
	assert.Equal(t, int64(5), got.Quantity)

	assert.ErrorIs(t, c.UpdateQuantity(itemID, -2), cart.ErrInvalidQuantity)
	assert.ErrorIs(t, c.UpdateQuantity(id.NewCartItemID(), 1), cart.ErrItemNotFound)

	require.NoError(t, c.UpdateQuantity(itemID, 0))
	assert.True(t, c.IsEmpty())
	assert.Equal(t, int64(3), c.Version)
}

func TestRemoveAndClear(t *testing.T) {
	c := cart.New("user-1")
	a, err := c.Add(apple, 1)
	require.NoError(t, err)
	aID := a.ID
	_, err = c.Add(banana, 1)
	require.NoError(t, err)

	require.NoError(t, c.Remove(aID))
	assert.Len(t, c.Items, 1)
	assert.ErrorIs(t, c.Remove(aID), cart.ErrItemNotFound)

	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.Equal(t, int64(4), c.Version)
}

func TestSnapshot(t *testing.T) {
	c := cart.New("user-1")
	_, err := c.Add(apple, 2)
	require.NoError(t, err)
	_, err = c.Add(banana, 3)
	require.NoError(t, err)

	snap := c.Snapshot(pricing.MustPolicy("18", "inr"))
	assert.Equal(t, int64(350), snap.Totals.Subtotal.Amount)
	assert.Equal(t, int64(63), snap.Totals.Tax.Amount)
	assert.Equal(t, int64(413), snap.Totals.Total.Amount)
	assert.Equal(t, int64(5), snap.ItemCount())
	assert.Equal(t, c.Version, snap.Version)

	snap.Items[0].Quantity = 99
	assert.Equal(t, int64(2), c.Items[0].Quantity, "snapshot must not alias cart items")
}

func TestSnapshotCurrencyComesFromPolicy(t *testing.T) {
	c := cart.New("user-1")

	snap := c.Snapshot(pricing.MustPolicy("18", "usd"))
	assert.Equal(t, "usd", snap.Totals.Subtotal.Currency)
	assert.Equal(t, "usd", snap.Totals.Total.Currency)
	assert.Zero(t, snap.Totals.Total.Amount)
}

func TestLineTotalsCannotOverflow(t *testing.T) {
	bullion := catalog.Product{Ref: "gold", Name: "Gold bar", Price: types.INR(1 << 40), Stock: 1 << 40}

	c := cart.New("user-1")
	_, err := c.Add(bullion, 1<<30)
	assert.ErrorIs(t, err, types.ErrOverflow)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, int64(0), c.Version)

	item, err := c.Add(apple, 1)
	require.NoError(t, err)

	err = c.UpdateQuantity(item.ID, 1<<62)
	assert.ErrorIs(t, err, types.ErrOverflow)
	got, ok := c.Item(item.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Quantity)
	assert.Equal(t, int64(1), c.Version)
}
