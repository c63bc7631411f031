// Package kafka publishes checkout lifecycle events to a Kafka topic. Each
// message is a JSON Envelope keyed by order ID, so events for one order land
// on one partition in the order they were emitted.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/plugin"
)

// Event types carried in Envelope.Type.
const (
	TypeCartUpdated      = "cart.updated"
	TypeOrderCompiled    = "order.compiled"
	TypeOrderCancelled   = "order.cancelled"
	TypePaymentInitiated = "payment.initiated"
	TypeOrderPaid        = "order.paid"
	TypePaymentFailed    = "payment.failed"
	TypePaymentFlagged   = "payment.flagged"
	TypeExitTokenIssued  = "exit.token_issued"
	TypeExitVerified     = "exit.verified"
	TypeExitDenied       = "exit.denied"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Publisher)(nil)
	_ plugin.OnShutdown         = (*Publisher)(nil)
	_ plugin.OnCartUpdated      = (*Publisher)(nil)
	_ plugin.OnOrderCompiled    = (*Publisher)(nil)
	_ plugin.OnOrderCancelled   = (*Publisher)(nil)
	_ plugin.OnPaymentInitiated = (*Publisher)(nil)
	_ plugin.OnOrderPaid        = (*Publisher)(nil)
	_ plugin.OnPaymentFailed    = (*Publisher)(nil)
	_ plugin.OnPaymentFlagged   = (*Publisher)(nil)
	_ plugin.OnExitTokenIssued  = (*Publisher)(nil)
	_ plugin.OnExitVerified     = (*Publisher)(nil)
	_ plugin.OnExitDenied       = (*Publisher)(nil)
)

// Envelope is the message body.
type Envelope struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	OrderID    string         `json:"order_id,omitempty"`
	OwnerID    string         `json:"owner_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher is a checkout plugin that writes lifecycle events to Kafka.
type Publisher struct {
	writer MessageWriter
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithWriter replaces the Kafka writer.
func WithWriter(w MessageWriter) Option {
	return func(p *Publisher) { p.writer = w }
}

// WithClock overrides the time source used for OccurredAt.
func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) { p.clock = clock }
}

// NewWriter returns a synchronous writer for topic that hashes keys to
// partitions and waits for the leader's acknowledgement.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// New creates a Publisher writing to topic on brokers.
func New(brokers []string, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.writer == nil {
		p.writer = NewWriter(brokers, topic)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "kafka-publisher" }

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	return p.writer.Close()
}

// ──────────────────────────────────────────────────
// Cart and order hooks
// ──────────────────────────────────────────────────

// OnCartUpdated implements plugin.OnCartUpdated.
func (p *Publisher) OnCartUpdated(ctx context.Context, snap *cart.Snapshot) error {
	return p.publish(ctx, Envelope{
		Type:    TypeCartUpdated,
		OwnerID: snap.OwnerID,
		Data: map[string]any{
			"cart_id": snap.CartID.String(),
			"version": snap.Version,
			"items":   snap.ItemCount(),
			"total":   snap.Totals.Total,
		},
	})
}

// OnOrderCompiled implements plugin.OnOrderCompiled.
func (p *Publisher) OnOrderCompiled(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, Envelope{
		Type:    TypeOrderCompiled,
		OrderID: o.ID.String(),
		OwnerID: o.OwnerID,
		Data: map[string]any{
			"number":     o.Number,
			"subtotal":   o.Subtotal,
			"tax":        o.Tax,
			"total":      o.Total,
			"expires_at": o.ExpiresAt,
		},
	})
}

// OnOrderCancelled implements plugin.OnOrderCancelled.
func (p *Publisher) OnOrderCancelled(ctx context.Context, o *order.Order, reason string) error {
	return p.publish(ctx, Envelope{
		Type:    TypeOrderCancelled,
		OrderID: o.ID.String(),
		OwnerID: o.OwnerID,
		Data:    map[string]any{"reason": reason},
	})
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentInitiated implements plugin.OnPaymentInitiated.
func (p *Publisher) OnPaymentInitiated(ctx context.Context, pay *payment.Payment) error {
	return p.publish(ctx, Envelope{
		Type:    TypePaymentInitiated,
		OrderID: pay.OrderID.String(),
		Data:    paymentData(pay),
	})
}

// OnOrderPaid implements plugin.OnOrderPaid.
func (p *Publisher) OnOrderPaid(ctx context.Context, o *order.Order, pay *payment.Payment) error {
	return p.publish(ctx, Envelope{
		Type:    TypeOrderPaid,
		OrderID: o.ID.String(),
		OwnerID: o.OwnerID,
		Data:    paymentData(pay),
	})
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (p *Publisher) OnPaymentFailed(ctx context.Context, o *order.Order, pay *payment.Payment) error {
	data := paymentData(pay)
	data["failure_reason"] = pay.FailureReason
	return p.publish(ctx, Envelope{
		Type:    TypePaymentFailed,
		OrderID: o.ID.String(),
		OwnerID: o.OwnerID,
		Data:    data,
	})
}

// OnPaymentFlagged implements plugin.OnPaymentFlagged.
func (p *Publisher) OnPaymentFlagged(ctx context.Context, pay *payment.Payment, reason string) error {
	data := paymentData(pay)
	data["review_reason"] = reason
	return p.publish(ctx, Envelope{
		Type:    TypePaymentFlagged,
		OrderID: pay.OrderID.String(),
		Data:    data,
	})
}

// ──────────────────────────────────────────────────
// Exit hooks
// ──────────────────────────────────────────────────

// Token values are bearer credentials and never leave the engine; events
// carry the token ID instead.

// OnExitTokenIssued implements plugin.OnExitTokenIssued.
func (p *Publisher) OnExitTokenIssued(ctx context.Context, o *order.Order, t *exittoken.Token) error {
	return p.publish(ctx, Envelope{
		Type:    TypeExitTokenIssued,
		OrderID: o.ID.String(),
		OwnerID: o.OwnerID,
		Data: map[string]any{
			"token_id":   t.ID.String(),
			"generation": t.Generation,
			"expires_at": t.ExpiresAt,
		},
	})
}

// OnExitVerified implements plugin.OnExitVerified.
func (p *Publisher) OnExitVerified(ctx context.Context, o *order.Order, t *exittoken.Token) error {
	return p.publish(ctx, Envelope{
		Type:    TypeExitVerified,
		OrderID: o.ID.String(),
		OwnerID: o.OwnerID,
		Data: map[string]any{
			"token_id":    t.ID.String(),
			"verified_by": t.VerifiedBy,
			"items":       o.ItemCount(),
			"total":       o.Total,
		},
	})
}

// OnExitDenied implements plugin.OnExitDenied.
func (p *Publisher) OnExitDenied(ctx context.Context, outcome exittoken.Outcome, t *exittoken.Token) error {
	env := Envelope{
		Type: TypeExitDenied,
		Data: map[string]any{"outcome": string(outcome)},
	}
	if t != nil {
		env.OrderID = t.OrderID.String()
		env.Data["token_id"] = t.ID.String()
	}
	return p.publish(ctx, env)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (p *Publisher) publish(ctx context.Context, env Envelope) error {
	env.OccurredAt = p.clock().UTC()

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka: encode %s: %w", env.Type, err)
	}

	key := env.OrderID
	if key == "" {
		key = env.OwnerID
	}

	msg := kafkago.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(env.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish %s: %w", env.Type, err)
	}

	p.logger.Debug("event published",
		"type", env.Type,
		"order_id", env.OrderID,
	)
	return nil
}

func paymentData(pay *payment.Payment) map[string]any {
	return map[string]any{
		"payment_id":     pay.ID.String(),
		"provider":       pay.Provider,
		"reference":      pay.Reference,
		"amount":         pay.Amount,
		"status":         string(pay.Status),
		"transaction_id": pay.TransactionID,
	}
}
