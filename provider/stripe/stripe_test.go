package stripe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/types"
)

const testSecret = "whsec_test"

type fakeIntents struct {
	params *stripego.PaymentIntentParams
	err    error
}

func (f *fakeIntents) New(params *stripego.PaymentIntentParams) (*stripego.PaymentIntent, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripego.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret"}, nil
}

func TestInitiate(t *testing.T) {
	fake := &fakeIntents{}
	p := &Provider{intents: fake, methods: []string{"card"}}
	orderID := id.NewOrderID()

	h, err := p.Initiate(context.Background(), payment.InitiateRequest{
		OrderID:     orderID,
		OrderNumber: "ORD-20240301-000001",
		OwnerID:     "user-1",
		Reference:   "ref-1",
		Amount:      types.INR(41300),
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", h.Handle)
	assert.Equal(t, "pi_123_secret", h.ClientSecret)

	require.NotNil(t, fake.params)
	assert.Equal(t, int64(41300), *fake.params.Amount)
	assert.Equal(t, "inr", *fake.params.Currency)
	assert.Equal(t, orderID.String()+":ref-1", *fake.params.IdempotencyKey)
	assert.Equal(t, orderID.String(), fake.params.Metadata[MetaOrderID])
	assert.Equal(t, "ref-1", fake.params.Metadata[MetaReference])
}

func TestInitiateError(t *testing.T) {
	p := &Provider{intents: &fakeIntents{err: errors.New("card_declined")}}
	_, err := p.Initiate(context.Background(), payment.InitiateRequest{
		OrderID:   id.NewOrderID(),
		Reference: "ref-1",
		Amount:    types.INR(100),
	})
	assert.Error(t, err)
}

func signed(t *testing.T, eventType, intent string) ([]byte, string) {
	t.Helper()
	body := fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":%s}}`, eventType, intent)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Payload, sp.Header
}

func TestParseWebhook(t *testing.T) {
	p := &Provider{webhookSecret: testSecret}
	orderID := id.NewOrderID()

	t.Run("succeeded", func(t *testing.T) {
		intent := fmt.Sprintf(`{"id":"pi_1","object":"payment_intent","amount":41300,"amount_received":41300,"currency":"inr","status":"succeeded","metadata":{"order_id":%q,"reference":"ref-1"}}`, orderID.String())
		payload, header := signed(t, "payment_intent.succeeded", intent)

		ev, err := p.ParseWebhook(payload, header)
		require.NoError(t, err)
		assert.Equal(t, payment.EventSuccess, ev.Status)
		assert.Equal(t, "ref-1", ev.Reference)
		assert.Equal(t, orderID.String(), ev.OrderID.String())
		assert.Equal(t, types.INR(41300), ev.Amount)
		assert.Equal(t, "pi_1", ev.TransactionID)
		assert.NoError(t, ev.Validate())
	})

	t.Run("failed", func(t *testing.T) {
		intent := fmt.Sprintf(`{"id":"pi_2","object":"payment_intent","amount":41300,"currency":"inr","status":"requires_payment_method","last_payment_error":{"message":"Your card was declined."},"metadata":{"order_id":%q,"reference":"ref-2"}}`, orderID.String())
		payload, header := signed(t, "payment_intent.payment_failed", intent)

		ev, err := p.ParseWebhook(payload, header)
		require.NoError(t, err)
		assert.Equal(t, payment.EventFailure, ev.Status)
		assert.Equal(t, "Your card was declined.", ev.Reason)
	})

	t.Run("unhandled", func(t *testing.T) {
		payload, header := signed(t, "customer.created", `{"id":"cus_1","object":"customer"}`)
		_, err := p.ParseWebhook(payload, header)
		assert.ErrorIs(t, err, ErrUnhandledEvent)
	})

	t.Run("bad signature", func(t *testing.T) {
		payload, _ := signed(t, "payment_intent.succeeded", `{"id":"pi_1","object":"payment_intent"}`)
		_, err := p.ParseWebhook(payload, "t=1,v1=deadbeef")
		assert.ErrorIs(t, err, checkout.ErrWebhookSignature)
	})

	t.Run("missing metadata", func(t *testing.T) {
		payload, header := signed(t, "payment_intent.succeeded", `{"id":"pi_3","object":"payment_intent","amount":100,"currency":"inr","metadata":{}}`)
		_, err := p.ParseWebhook(payload, header)
		assert.ErrorIs(t, err, checkout.ErrInvalidEvent)
	})
}
