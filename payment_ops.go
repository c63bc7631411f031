package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/checkout/catalog"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/types"
)

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

// InitiatePayment starts a payment attempt for a pending order. Calling it
// again with the same reference returns the attempt already created. An
// empty reference is replaced by a fresh one. Earlier attempts still in
// flight are failed so an order has a single active attempt.
func (e *Engine) InitiatePayment(ctx context.Context, ownerID string, orderID id.OrderID, method, reference string) (*payment.Payment, error) {
	if e.provider == nil {
		return nil, ErrProviderNotReady
	}

	o, err := e.GetOwnedOrder(ctx, ownerID, orderID)
	if err != nil {
		return nil, err
	}

	reference = strings.TrimSpace(reference)
	if reference != "" {
		existing, err := e.store.GetPaymentByReference(ctx, o.ID, reference)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
	}

	if o.Status != order.StatusPendingPayment {
		return nil, ErrOrderNotPending
	}
	now := e.now()
	if o.IsExpired(now) {
		return nil, ErrOrderExpired
	}

	paymentID := id.NewPaymentID()
	if reference == "" {
		reference = paymentID.String()
	}

	handle, err := e.provider.Initiate(ctx, payment.InitiateRequest{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		OwnerID:     o.OwnerID,
		Reference:   reference,
		Amount:      o.Total,
		Method:      method,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, e.provider.Name(), err)
	}

	p := &payment.Payment{
		Entity:       types.NewEntityAt(now),
		ID:           paymentID,
		OrderID:      o.ID,
		Provider:     e.provider.Name(),
		Method:       method,
		Reference:    reference,
		Handle:       handle.Handle,
		ClientSecret: handle.ClientSecret,
		RedirectURL:  handle.RedirectURL,
		Amount:       o.Total,
		Status:       payment.StatusInitiated,
	}

	if err := e.store.CreatePayment(ctx, p); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return e.store.GetPaymentByReference(ctx, o.ID, reference)
		}
		return nil, err
	}

	if n, err := e.store.SupersedePayments(ctx, o.ID, p.ID, "superseded", now); err != nil {
		e.logger.Warn("failed to supersede earlier payment attempts",
			"order_id", o.ID.String(),
			"error", err,
		)
	} else if n > 0 {
		e.logger.Debug("superseded earlier payment attempts",
			"order_id", o.ID.String(),
			"count", n,
		)
	}

	e.logger.Info("payment initiated",
		"order_id", o.ID.String(),
		"payment_id", p.ID.String(),
		"provider", p.Provider,
		"reference", reference,
		"amount", p.Amount.Amount,
	)
	e.plugins.EmitPaymentInitiated(ctx, p)
	return p, nil
}

// GetPayment returns a payment attempt by ID.
func (e *Engine) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return e.store.GetPayment(ctx, paymentID)
}

// ListPayments returns all attempts made for an order, oldest first.
func (e *Engine) ListPayments(ctx context.Context, orderID id.OrderID) ([]*payment.Payment, error) {
	return e.store.ListPayments(ctx, orderID)
}

// ConfirmPayment reconciles a provider confirmation with the order. It is
// safe under at-least-once, out-of-order delivery: at most one event moves
// the order out of pending_payment and replays are acknowledged without
// effect. An amount that differs from the order total is refused with
// ErrAmountMismatch, leaves the order untouched and flags the attempt.
func (e *Engine) ConfirmPayment(ctx context.Context, ev payment.Event) (*payment.Outcome, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	for range maxRaceAttempts {
		o, err := e.store.GetOrder(ctx, ev.OrderID)
		if err != nil {
			return nil, err
		}
		p, err := e.store.GetPaymentByReference(ctx, o.ID, ev.Reference)
		if err != nil {
			return nil, err
		}

		d := payment.Reconcile(o.Status, o.Total, p, ev)
		if d.Review != "" {
			e.flag(ctx, p, d.Review)
		}

		at := e.now()
		switch d.Action {
		case payment.ActionReject:
			e.logger.Warn("payment event rejected",
				"order_id", o.ID.String(),
				"payment_id", p.ID.String(),
				"order_status", string(o.Status),
				"event_status", string(ev.Status),
				"amount", ev.Amount.Amount,
				"expected", o.Total.Amount,
				"error", d.Err,
			)
			return nil, d.Err

		case payment.ActionAcknowledge:
			e.logger.Debug("payment event acknowledged",
				"order_id", o.ID.String(),
				"payment_id", p.ID.String(),
				"order_status", string(o.Status),
			)
			return outcome(o, p, d, false), nil

		case payment.ActionApplySuccess:
			err = e.store.MarkOrderPaid(ctx, o.ID, p.ID, ev.TransactionID, at)
			if errors.Is(err, ErrConcurrentUpdate) {
				continue
			}
			if err != nil {
				return nil, err
			}
			o.Apply(order.StatusPaid, at)
			settle(p, payment.StatusSuccess, ev, at)
			e.takeStock(ctx, o)

			e.logger.Info("order paid",
				"order_id", o.ID.String(),
				"payment_id", p.ID.String(),
				"transaction_id", ev.TransactionID,
			)
			e.plugins.EmitOrderPaid(ctx, o, p)
			return outcome(o, p, d, true), nil

		case payment.ActionApplyFailure:
			err = e.store.MarkOrderPaymentFailed(ctx, o.ID, p.ID, ev.TransactionID, ev.Reason, at)
			if errors.Is(err, ErrConcurrentUpdate) {
				continue
			}
			if err != nil {
				return nil, err
			}
			o.Apply(order.StatusPaymentFailed, at)
			settle(p, payment.StatusFailed, ev, at)

			e.logger.Info("order payment failed",
				"order_id", o.ID.String(),
				"payment_id", p.ID.String(),
				"reason", ev.Reason,
			)
			e.plugins.EmitPaymentFailed(ctx, o, p)
			return outcome(o, p, d, true), nil

		case payment.ActionFailAttempt:
			err = e.store.FailPayment(ctx, p.ID, ev.TransactionID, ev.Reason, at)
			if errors.Is(err, ErrConcurrentUpdate) {
				continue
			}
			if err != nil {
				return nil, err
			}
			settle(p, payment.StatusFailed, ev, at)
			return outcome(o, p, d, true), nil
		}
	}

	return nil, ErrConcurrentUpdate
}

func (e *Engine) flag(ctx context.Context, p *payment.Payment, reason string) {
	if p.NeedsReview && p.ReviewReason == reason {
		return
	}
	if err := e.store.FlagPayment(ctx, p.ID, reason, e.now()); err != nil {
		e.logger.Error("failed to flag payment for review",
			"payment_id", p.ID.String(),
			"reason", reason,
			"error", err,
		)
		return
	}
	p.NeedsReview = true
	p.ReviewReason = reason
	e.plugins.EmitPaymentFlagged(ctx, p, reason)
}

// takeStock removes a paid order's quantities from the catalog when it
// tracks inventory. The payment has already been applied, so failures are
// logged for the back office rather than returned.
func (e *Engine) takeStock(ctx context.Context, o *order.Order) {
	inv, ok := e.catalog.(catalog.Inventory)
	if !ok {
		return
	}
	for _, item := range o.Items {
		err := inv.DecrementStock(ctx, item.ProductRef, item.Quantity)
		switch {
		case err == nil:
		case errors.Is(err, ErrInsufficientStock):
			e.logger.Warn("paid order oversold product",
				"order_id", o.ID.String(),
				"product_ref", item.ProductRef,
				"quantity", item.Quantity,
			)
		default:
			e.logger.Error("failed to decrement stock",
				"order_id", o.ID.String(),
				"product_ref", item.ProductRef,
				"quantity", item.Quantity,
				"error", err,
			)
		}
	}
}

func settle(p *payment.Payment, status payment.Status, ev payment.Event, at time.Time) {
	p.Status = status
	p.TransactionID = ev.TransactionID
	p.FailureReason = ev.Reason
	p.ConfirmedAt = &at
	p.UpdatedAt = at
}

func outcome(o *order.Order, p *payment.Payment, d payment.Decision, applied bool) *payment.Outcome {
	return &payment.Outcome{
		Payment:     p,
		OrderStatus: o.Status,
		Action:      d.Action.String(),
		Applied:     applied,
	}
}
