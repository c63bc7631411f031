package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/checkout/store"
)

type pair struct {
	order, payment, reverted bool

	orderLost   bool
	paymentLost bool
	paymentErr  error
	revertErr   error
}

func (p *pair) settlement() store.Settlement {
	return store.Settlement{
		Order: func(context.Context) (bool, error) {
			if p.orderLost {
				return false, nil
			}
			p.order = true
			return true, nil
		},
		Payment: func(context.Context) (bool, error) {
			if p.paymentErr != nil {
				return false, p.paymentErr
			}
			if p.paymentLost {
				return false, nil
			}
			p.payment = true
			return true, nil
		},
		Revert: func(context.Context) error {
			if p.revertErr != nil {
				return p.revertErr
			}
			p.order = false
			p.reverted = true
			return nil
		},
	}
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	writeErr := errors.New("disk I/O error")

	t.Run("both rows move", func(t *testing.T) {
		p := &pair{}
		moved, err := store.Settle(ctx, p.settlement())
		require.NoError(t, err)
		assert.True(t, moved)
		assert.True(t, p.order)
		assert.True(t, p.payment)
		assert.False(t, p.reverted)
	})

	t.Run("order already closed", func(t *testing.T) {
		p := &pair{orderLost: true}
		moved, err := store.Settle(ctx, p.settlement())
		require.NoError(t, err)
		assert.False(t, moved)
		assert.False(t, p.payment)
		assert.False(t, p.reverted)
	})

	t.Run("payment no longer initiated", func(t *testing.T) {
		p := &pair{paymentLost: true}
		moved, err := store.Settle(ctx, p.settlement())
		require.NoError(t, err)
		assert.False(t, moved)
		assert.False(t, p.order, "the order is put back")
		assert.True(t, p.reverted)
	})

	t.Run("payment write fails", func(t *testing.T) {
		p := &pair{paymentErr: writeErr}
		moved, err := store.Settle(ctx, p.settlement())
		require.ErrorIs(t, err, writeErr)
		assert.False(t, moved)
		assert.False(t, p.order, "the order is put back")
		assert.True(t, p.reverted)
	})

	t.Run("revert fails too", func(t *testing.T) {
		revErr := errors.New("connection reset")
		p := &pair{paymentErr: writeErr, revertErr: revErr}
		moved, err := store.Settle(ctx, p.settlement())
		assert.False(t, moved)
		assert.ErrorIs(t, err, writeErr)
		assert.ErrorIs(t, err, revErr)
	})
}
