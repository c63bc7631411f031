package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/checkout"
	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/catalog"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/pricing"
	"github.com/xraph/checkout/store/memory"
	"github.com/xraph/checkout/types"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func pendingOrder(t *testing.T, s *memory.Store) *order.Order {
	t.Helper()

	c := cart.New("user-1")
	_, err := c.Add(catalog.Product{Ref: "apple", Name: "Apple", Price: types.INR(100), Stock: 10}, 2)
	require.NoError(t, err)

	o, err := order.Compile(c.Snapshot(pricing.MustPolicy("5", "inr")), pricing.MustPolicy("5", "inr"), t0, 15*time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.CreateOrder(context.Background(), o))
	return o
}

func initiatedPayment(t *testing.T, s *memory.Store, o *order.Order, ref string) *payment.Payment {
	t.Helper()

	p := &payment.Payment{
		Entity:    types.NewEntityAt(t0),
		ID:        id.NewPaymentID(),
		OrderID:   o.ID,
		Provider:  "stub",
		Reference: ref,
		Amount:    o.Total,
		Status:    payment.StatusInitiated,
	}
	require.NoError(t, s.CreatePayment(context.Background(), p))
	return p
}

func TestSaveCartVersioning(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	_, err := s.GetCart(ctx, "user-1")
	require.ErrorIs(t, err, checkout.ErrCartNotFound)

	c := cart.New("user-1")
	_, err = c.Add(catalog.Product{Ref: "apple", Price: types.INR(100), Stock: 10}, 1)
	require.NoError(t, err)
	require.NoError(t, s.SaveCart(ctx, c, 0))

	// A second insert at version 0 lost the race.
	require.ErrorIs(t, s.SaveCart(ctx, cart.New("user-1"), 0), checkout.ErrStaleCart)

	got, err := s.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	// Mutating the returned copy does not leak into the store.
	got.Items[0].Quantity = 99
	again, err := s.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Items[0].Quantity)

	require.NoError(t, s.ClearCart(ctx, "user-1"))
	cleared, err := s.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, cleared.Items)
	assert.Equal(t, int64(2), cleared.Version)

	require.ErrorIs(t, s.SaveCart(ctx, got, 1), checkout.ErrStaleCart)
}

func TestTransitionOrder(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	o := pendingOrder(t, s)

	require.NoError(t, s.TransitionOrder(ctx, o.ID, order.StatusPendingPayment, order.StatusCancelled, t0))
	require.ErrorIs(t, s.TransitionOrder(ctx, o.ID, order.StatusPendingPayment, order.StatusPaid, t0), checkout.ErrConcurrentUpdate)
	require.ErrorIs(t, s.TransitionOrder(ctx, id.NewOrderID(), order.StatusPendingPayment, order.StatusPaid, t0), checkout.ErrOrderNotFound)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.NotNil(t, got.ClosedAt)

	byNumber, err := s.GetOrderByNumber(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byNumber.ID)
}

func TestCreateOrderNumberClash(t *testing.T) {
	s := memory.New()
	o := pendingOrder(t, s)

	dup := o.Clone()
	dup.ID = id.NewOrderID()
	require.ErrorIs(t, s.CreateOrder(context.Background(), dup), checkout.ErrAlreadyExists)
}

func TestListOrdersPagination(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	pendingOrder(t, s)
	pendingOrder(t, s)

	got, err := s.ListOrders(ctx, "user-1", order.ListOpts{Offset: -5})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListOrders(ctx, "user-1", order.ListOpts{Offset: 1, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.ListOrders(ctx, "user-1", order.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListExpiredPending(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	o := pendingOrder(t, s)

	none, err := s.ListExpiredPending(ctx, t0.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	expired, err := s.ListExpiredPending(ctx, o.ExpiresAt, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, o.ID, expired[0].ID)
}

func TestMarkOrderPaid(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	o := pendingOrder(t, s)
	p := initiatedPayment(t, s, o, "ref-1")

	require.ErrorIs(t, s.CreatePayment(ctx, p), checkout.ErrAlreadyExists)

	require.NoError(t, s.MarkOrderPaid(ctx, o.ID, p.ID, "txn-1", t0))
	require.ErrorIs(t, s.MarkOrderPaid(ctx, o.ID, p.ID, "txn-1", t0), checkout.ErrConcurrentUpdate)

	gotOrder, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, gotOrder.Status)

	gotPayment, err := s.GetPaymentByReference(ctx, o.ID, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, gotPayment.Status)
	assert.Equal(t, "txn-1", gotPayment.TransactionID)
	assert.NotNil(t, gotPayment.ConfirmedAt)
}

func TestMarkOrderPaidLeavesPairUntouchedWhenOrderClosed(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	o := pendingOrder(t, s)
	p := initiatedPayment(t, s, o, "ref-1")

	require.NoError(t, s.TransitionOrder(ctx, o.ID, order.StatusPendingPayment, order.StatusCancelled, t0))
	require.ErrorIs(t, s.MarkOrderPaid(ctx, o.ID, p.ID, "txn-1", t0), checkout.ErrConcurrentUpdate)

	got, err := s.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusInitiated, got.Status)
}

func TestSupersedePayments(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	o := pendingOrder(t, s)
	old := initiatedPayment(t, s, o, "ref-1")
	keep := initiatedPayment(t, s, o, "ref-2")

	n, err := s.SupersedePayments(ctx, o.ID, keep.ID, "superseded", t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetPayment(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, got.Status)

	n, err = s.SupersedePayments(ctx, o.ID, id.Nil, "order_expired", t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := s.ListPayments(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, p := range list {
		assert.Equal(t, payment.StatusFailed, p.Status)
	}
}

func TestExitTokenGenerationsAreUnique(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	o := pendingOrder(t, s)

	first, err := exittoken.New(o.ID, 1, t0, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.CreateExitToken(ctx, first))

	clash, err := exittoken.New(o.ID, 1, t0, time.Minute)
	require.NoError(t, err)
	require.ErrorIs(t, s.CreateExitToken(ctx, clash), checkout.ErrAlreadyExists)

	second, err := exittoken.New(o.ID, 2, t0, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.CreateExitToken(ctx, second))

	latest, err := s.LatestExitToken(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Generation)

	active, err := s.GetActiveExitToken(ctx, o.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, second.Value, active.Value)

	_, err = s.GetActiveExitToken(ctx, o.ID, t0.Add(time.Minute))
	require.ErrorIs(t, err, checkout.ErrExitTokenNotFound)
}

func TestConsumeExitTokenOnce(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	o := pendingOrder(t, s)

	tok, err := exittoken.New(o.ID, 1, t0, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.CreateExitToken(ctx, tok))

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeExitToken(ctx, tok.Value, t0, "gate-1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	got, err := s.GetExitTokenByValue(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, exittoken.StatusUsed, got.Status)
	assert.Equal(t, "gate-1", got.VerifiedBy)

	require.ErrorIs(t, s.ExpireExitToken(ctx, tok.ID, t0), checkout.ErrConcurrentUpdate)
}

func TestConsumeExitTokenAtExpiry(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	o := pendingOrder(t, s)

	tok, err := exittoken.New(o.ID, 1, t0, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.CreateExitToken(ctx, tok))

	_, err = s.ConsumeExitToken(ctx, tok.Value, tok.ExpiresAt, "gate-1")
	require.ErrorIs(t, err, checkout.ErrConcurrentUpdate)

	_, err = s.ConsumeExitToken(ctx, "missing", t0, "gate-1")
	require.ErrorIs(t, err, checkout.ErrExitTokenNotFound)
}
