// Package audithook bridges checkout lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on a
// particular audit store. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnCartUpdated      = (*Extension)(nil)
	_ plugin.OnOrderCompiled    = (*Extension)(nil)
	_ plugin.OnOrderCancelled   = (*Extension)(nil)
	_ plugin.OnPaymentInitiated = (*Extension)(nil)
	_ plugin.OnOrderPaid        = (*Extension)(nil)
	_ plugin.OnPaymentFailed    = (*Extension)(nil)
	_ plugin.OnPaymentFlagged   = (*Extension)(nil)
	_ plugin.OnExitTokenIssued  = (*Extension)(nil)
	_ plugin.OnExitVerified     = (*Extension)(nil)
	_ plugin.OnExitDenied       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges checkout lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Cart and order hooks
// ──────────────────────────────────────────────────

// OnCartUpdated implements plugin.OnCartUpdated.
func (e *Extension) OnCartUpdated(ctx context.Context, snap *cart.Snapshot) error {
	return e.record(ctx, ActionCartUpdated, SeverityInfo, OutcomeSuccess,
		ResourceCart, snap.CartID.String(), CategoryShopping, nil,
		"owner_id", snap.OwnerID,
		"version", snap.Version,
		"items", snap.ItemCount(),
	)
}

// OnOrderCompiled implements plugin.OnOrderCompiled.
func (e *Extension) OnOrderCompiled(ctx context.Context, o *order.Order) error {
	return e.record(ctx, ActionOrderCompiled, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID.String(), CategoryShopping, nil,
		"owner_id", o.OwnerID,
		"number", o.Number,
		"total", o.Total.String(),
		"cart_version", o.CartVersion,
	)
}

// OnOrderCancelled implements plugin.OnOrderCancelled.
func (e *Extension) OnOrderCancelled(ctx context.Context, o *order.Order, reason string) error {
	action := ActionOrderCancelled
	if reason == "expired" {
		action = ActionOrderExpired
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID.String(), CategoryShopping, nil,
		"owner_id", o.OwnerID,
		"number", o.Number,
		"cancel_reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentInitiated implements plugin.OnPaymentInitiated.
func (e *Extension) OnPaymentInitiated(ctx context.Context, p *payment.Payment) error {
	return e.record(ctx, ActionPaymentInitiated, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"order_id", p.OrderID.String(),
		"provider", p.Provider,
		"method", p.Method,
		"reference", p.Reference,
		"amount", p.Amount.String(),
	)
}

// OnOrderPaid implements plugin.OnOrderPaid.
func (e *Extension) OnOrderPaid(ctx context.Context, o *order.Order, p *payment.Payment) error {
	return e.record(ctx, ActionOrderPaid, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID.String(), CategoryPayment, nil,
		"payment_id", p.ID.String(),
		"reference", p.Reference,
		"transaction_id", p.TransactionID,
		"total", o.Total.String(),
	)
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, o *order.Order, p *payment.Payment) error {
	var err error
	if p.FailureReason != "" {
		err = errors.New(p.FailureReason)
	}
	return e.record(ctx, ActionPaymentFailed, SeverityWarning, OutcomeFailure,
		ResourcePayment, p.ID.String(), CategoryPayment, err,
		"order_id", o.ID.String(),
		"reference", p.Reference,
	)
}

// OnPaymentFlagged implements plugin.OnPaymentFlagged.
func (e *Extension) OnPaymentFlagged(ctx context.Context, p *payment.Payment, reason string) error {
	return e.record(ctx, ActionPaymentFlagged, SeverityCritical, OutcomeFailure,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"order_id", p.OrderID.String(),
		"reference", p.Reference,
		"review_reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Exit hooks
// ──────────────────────────────────────────────────

// OnExitTokenIssued implements plugin.OnExitTokenIssued.
func (e *Extension) OnExitTokenIssued(ctx context.Context, o *order.Order, t *exittoken.Token) error {
	return e.record(ctx, ActionExitTokenIssued, SeverityInfo, OutcomeSuccess,
		ResourceExitToken, t.ID.String(), CategoryAccess, nil,
		"order_id", o.ID.String(),
		"generation", t.Generation,
		"expires_at", t.ExpiresAt,
	)
}

// OnExitVerified implements plugin.OnExitVerified.
func (e *Extension) OnExitVerified(ctx context.Context, o *order.Order, t *exittoken.Token) error {
	return e.record(ctx, ActionExitVerified, SeverityInfo, OutcomeSuccess,
		ResourceExitToken, t.ID.String(), CategoryAccess, nil,
		"order_id", o.ID.String(),
		"verified_by", t.VerifiedBy,
	)
}

// OnExitDenied implements plugin.OnExitDenied. The token is nil when the
// presented value matched nothing.
func (e *Extension) OnExitDenied(ctx context.Context, outcome exittoken.Outcome, t *exittoken.Token) error {
	resourceID := ""
	kv := []any{"outcome", string(outcome)}
	if t != nil {
		resourceID = t.ID.String()
		kv = append(kv, "order_id", t.OrderID.String())
	}
	return e.record(ctx, ActionExitDenied, SeverityWarning, OutcomeFailure,
		ResourceExitToken, resourceID, CategoryAccess, nil,
		kv...,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
