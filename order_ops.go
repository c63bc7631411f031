package checkout

import (
	"context"
	"errors"

	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
)

// ──────────────────────────────────────────────────
// Orders
// ──────────────────────────────────────────────────

// numberAttempts bounds how often CompileOrder redraws a clashing order number.
const numberAttempts = 3

// CompileOrder freezes the owner's current cart into a pending order. Stock
// is checked again since it may have moved after the items were added. The
// cart itself is left untouched.
func (e *Engine) CompileOrder(ctx context.Context, ownerID string) (*order.Order, error) {
	c, err := e.loadCart(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	snap := c.Snapshot(e.policy)
	if len(snap.Items) > 0 {
		if err := e.checkStock(ctx, snap); err != nil {
			return nil, err
		}
	}
	for attempt := 1; ; attempt++ {
		o, err := order.Compile(snap, e.policy, e.now(), e.orderTTL)
		if err != nil {
			return nil, err
		}

		err = e.store.CreateOrder(ctx, o)
		if errors.Is(err, ErrAlreadyExists) && attempt < numberAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}

		e.logger.Info("order compiled",
			"order_id", o.ID.String(),
			"number", o.Number,
			"owner_id", o.OwnerID,
			"total", o.Total.Amount,
			"items", len(o.Items),
		)
		e.plugins.EmitOrderCompiled(ctx, o)
		return o, nil
	}
}

// GetOrder returns any order by ID. Gate and back-office callers use it.
func (e *Engine) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	return e.store.GetOrder(ctx, orderID)
}

// GetOrderByNumber returns an order by its human-facing number.
func (e *Engine) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	return e.store.GetOrderByNumber(ctx, number)
}

// GetOwnedOrder returns the order only if it belongs to ownerID. Orders of
// other owners are reported as not found.
func (e *Engine) GetOwnedOrder(ctx context.Context, ownerID string, orderID id.OrderID) (*order.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.OwnerID != ownerID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// ListOrders returns the owner's orders, newest first.
func (e *Engine) ListOrders(ctx context.Context, ownerID string, opts order.ListOpts) ([]*order.Order, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, ValidationError{Field: "status", Message: "unknown order status"}
	}
	if opts.Limit < 0 {
		return nil, ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if opts.Offset < 0 {
		return nil, ValidationError{Field: "offset", Message: "must not be negative"}
	}
	return e.store.ListOrders(ctx, ownerID, opts)
}

// CancelOrder abandons a pending order. Its outstanding payment attempts are
// failed so a late success is caught by reconciliation.
func (e *Engine) CancelOrder(ctx context.Context, ownerID string, orderID id.OrderID) (*order.Order, error) {
	o, err := e.GetOwnedOrder(ctx, ownerID, orderID)
	if err != nil {
		return nil, err
	}
	if err := e.cancel(ctx, o, "cancelled_by_owner"); err != nil {
		return nil, err
	}
	return o, nil
}

// ExpirePendingOrders cancels pending orders whose payment window has closed
// and returns how many it cancelled. The background sweeper calls it; it is
// safe to call concurrently from several processes.
func (e *Engine) ExpirePendingOrders(ctx context.Context) (int, error) {
	expired, err := e.store.ListExpiredPending(ctx, e.now(), e.sweepBatch)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, o := range expired {
		err := e.cancel(ctx, o, "expired")
		switch {
		case err == nil:
			n++
		case errors.Is(err, ErrOrderNotPending):
			// paid or cancelled meanwhile
		default:
			return n, err
		}
	}
	return n, nil
}

func (e *Engine) cancel(ctx context.Context, o *order.Order, reason string) error {
	if o.Status != order.StatusPendingPayment {
		return ErrOrderNotPending
	}

	at := e.now()
	err := e.store.TransitionOrder(ctx, o.ID, order.StatusPendingPayment, order.StatusCancelled, at)
	if errors.Is(err, ErrConcurrentUpdate) {
		return ErrOrderNotPending
	}
	if err != nil {
		return err
	}
	o.Apply(order.StatusCancelled, at)

	if _, err := e.store.SupersedePayments(ctx, o.ID, id.Nil, "order_"+reason, at); err != nil {
		e.logger.Warn("failed to close payment attempts of cancelled order",
			"order_id", o.ID.String(),
			"error", err,
		)
	}

	e.logger.Info("order cancelled",
		"order_id", o.ID.String(),
		"reason", reason,
	)
	e.plugins.EmitOrderCancelled(ctx, o, reason)
	return nil
}
