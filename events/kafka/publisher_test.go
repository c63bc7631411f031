package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/checkout/events/kafka"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/types"
)

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newPublisher(w *recordingWriter) *kafka.Publisher {
	return kafka.New(nil, "checkout-events",
		kafka.WithWriter(w),
		kafka.WithClock(func() time.Time { return fixedNow }),
	)
}

func decode(t *testing.T, msg kafkago.Message) kafka.Envelope {
	t.Helper()
	var env kafka.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	return env
}

func TestPublishOrderPaid(t *testing.T) {
	w := &recordingWriter{}
	p := newPublisher(w)

	o := &order.Order{ID: id.NewOrderID(), OwnerID: "user-1", Total: types.INR(413)}
	pay := &payment.Payment{ID: id.NewPaymentID(), OrderID: o.ID, Provider: "demo", Reference: "ref-1", Status: payment.StatusSuccess}

	require.NoError(t, p.OnOrderPaid(context.Background(), o, pay))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, o.ID.String(), string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, kafka.TypeOrderPaid, string(msg.Headers[0].Value))

	env := decode(t, msg)
	assert.Equal(t, kafka.TypeOrderPaid, env.Type)
	assert.True(t, fixedNow.Equal(env.OccurredAt))
	assert.Equal(t, "user-1", env.OwnerID)
	assert.Equal(t, "ref-1", env.Data["reference"])
	assert.Equal(t, "success", env.Data["status"])
}

func TestPublishExitTokenOmitsValue(t *testing.T) {
	w := &recordingWriter{}
	p := newPublisher(w)

	o := &order.Order{ID: id.NewOrderID(), OwnerID: "user-1"}
	tok := &exittoken.Token{ID: id.NewExitTokenID(), Value: "secret-token-value", OrderID: o.ID, Generation: 1}

	require.NoError(t, p.OnExitTokenIssued(context.Background(), o, tok))
	require.Len(t, w.msgs, 1)
	assert.NotContains(t, string(w.msgs[0].Value), "secret-token-value")
	assert.Equal(t, tok.ID.String(), decode(t, w.msgs[0]).Data["token_id"])
}

func TestPublishDeniedWithoutToken(t *testing.T) {
	w := &recordingWriter{}
	p := newPublisher(w)

	require.NoError(t, p.OnExitDenied(context.Background(), exittoken.OutcomeInvalid, nil))
	require.Len(t, w.msgs, 1)

	env := decode(t, w.msgs[0])
	assert.Empty(t, env.OrderID)
	assert.Equal(t, "invalid", env.Data["outcome"])
}

func TestPublishWriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker unavailable")}
	p := newPublisher(w)

	err := p.OnOrderCancelled(context.Background(), &order.Order{ID: id.NewOrderID()}, "shopper")
	require.Error(t, err)
	assert.Contains(t, err.Error(), kafka.TypeOrderCancelled)
}

func TestShutdownClosesWriter(t *testing.T) {
	w := &recordingWriter{}
	p := newPublisher(w)

	require.NoError(t, p.OnShutdown(context.Background()))
	assert.True(t, w.closed)
}
