package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/checkout"
	"github.com/xraph/checkout/catalog"
	"github.com/xraph/checkout/httpapi"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/store/memory"
	"github.com/xraph/checkout/types"
)

var (
	jwtSecret     = []byte("jwt-test-secret")
	webhookSecret = []byte("webhook-test-secret")
)

type stubProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Initiate(_ context.Context, req payment.InitiateRequest) (*payment.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return &payment.Handle{Handle: "h_" + req.Reference}, nil
}

type api struct {
	t       *testing.T
	e       *echo.Echo
	shopper string
	other   string
	staff   string
}

func newAPI(t *testing.T) *api {
	t.Helper()

	eng := checkout.New(memory.New(),
		checkout.WithCatalog(catalog.NewMemory(
			catalog.Product{Ref: "apple", Name: "Apple", Price: types.INR(100), Stock: 50},
			catalog.Product{Ref: "bread", Name: "Bread", Price: types.INR(50), Stock: 50},
		)),
		checkout.WithTaxRate(decimal.NewFromInt(18)),
		checkout.WithPaymentProvider(&stubProvider{}),
		checkout.WithExpirySweep(0, 0),
		checkout.WithIssueRetry(1, 10*time.Millisecond, 10*time.Millisecond),
		checkout.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Stop() })

	h := httpapi.New(eng, jwtSecret, httpapi.WithWebhookSecret(webhookSecret))

	sign := func(sub, role string) string {
		tok, err := httpapi.SignToken(jwtSecret, sub, role, time.Hour)
		require.NoError(t, err)
		return tok
	}

	return &api{
		t:       t,
		e:       httpapi.NewServer(h),
		shopper: sign("user-1", httpapi.RoleShopper),
		other:   sign("user-2", httpapi.RoleShopper),
		staff:   sign("gate-1", httpapi.RoleStaff),
	}
}

func (a *api) do(method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()

	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(a.t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func amount(m map[string]any, field string) float64 {
	money, _ := m[field].(map[string]any)
	v, _ := money["amount"].(float64)
	return v
}

func TestCheckoutOverHTTP(t *testing.T) {
	a := newAPI(t)

	rec, snap := a.do(http.MethodPost, "/checkout/cart/items", a.shopper,
		map[string]any{"product_ref": "apple", "quantity": 2, "version": 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), snap["version"])

	rec, snap = a.do(http.MethodPost, "/checkout/cart/items", a.shopper,
		map[string]any{"product_ref": "bread", "quantity": 3, "version": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), snap["version"])

	rec, ord := a.do(http.MethodPost, "/checkout/orders", a.shopper, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(350), amount(ord, "subtotal"))
	assert.Equal(t, float64(63), amount(ord, "tax"))
	assert.Equal(t, float64(413), amount(ord, "total"))
	orderID := ord["id"].(string)
	oid, err := id.ParseOrderID(orderID)
	require.NoError(t, err)

	rec, _ = a.do(http.MethodGet, "/checkout/orders/"+orderID, a.other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "orders are private to their owner")

	rec, _ = a.do(http.MethodPost, "/checkout/orders/"+orderID+"/exit-token", a.shopper, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "no exit before payment")

	rec, pay := a.do(http.MethodPost, "/checkout/orders/"+orderID+"/payments", a.shopper,
		map[string]any{"method": "upi"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reference := pay["reference"].(string)

	rec, _ = a.do(http.MethodGet, "/checkout/payments/"+pay["id"].(string), a.other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	event, err := json.Marshal(payment.Event{
		Provider:      "stub",
		Reference:     reference,
		OrderID:       oid,
		Amount:        types.INR(413),
		Status:        payment.EventSuccess,
		TransactionID: "txn_1",
	})
	require.NoError(t, err)
	sig := httpapi.Sign(webhookSecret, event)

	rec, out := a.do(http.MethodPost, "/checkout/webhooks/payments", "", event, httpapi.SignatureHeader, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["applied"])
	first := rec.Body.String()

	rec, _ = a.do(http.MethodPost, "/checkout/webhooks/payments", "", event, httpapi.SignatureHeader, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, first, rec.Body.String(), "redelivery is answered from the first response")

	rec, tok := a.do(http.MethodPost, "/checkout/orders/"+orderID+"/exit-token", a.shopper, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	value := tok["token"].(string)
	assert.NotEmpty(t, value)

	rec, _ = a.do(http.MethodPost, "/checkout/exit/verify", a.shopper, map[string]string{"token": value})
	assert.Equal(t, http.StatusForbidden, rec.Code, "shoppers cannot open the gate")

	rec, res := a.do(http.MethodPost, "/checkout/exit/verify", a.staff, map[string]string{"token": value})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, res["valid"])
	assert.Equal(t, "valid", res["status"])
	summary := res["order"].(map[string]any)
	assert.Equal(t, float64(5), summary["item_count"])

	rec, res = a.do(http.MethodPost, "/checkout/exit/verify", a.staff, map[string]string{"token": value})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, res["valid"])
	assert.Equal(t, "already_used", res["status"])

	rec, snap = a.do(http.MethodGet, "/checkout/cart", a.shopper, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, snap["items"], "cart is cleared once the exit token is issued")
}

func TestAuthentication(t *testing.T) {
	a := newAPI(t)

	rec, body := a.do(http.MethodGet, "/checkout/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(body))

	rec, _ = a.do(http.MethodGet, "/checkout/cart", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := httpapi.SignToken([]byte("other-secret"), "user-1", httpapi.RoleShopper, time.Hour)
	require.NoError(t, err)
	rec, _ = a.do(http.MethodGet, "/checkout/cart", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := httpapi.SignToken(jwtSecret, "user-1", httpapi.RoleShopper, -time.Minute)
	require.NoError(t, err)
	rec, _ = a.do(http.MethodGet, "/checkout/cart", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = a.do(http.MethodGet, "/checkout/cart", a.staff, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	a := newAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"stale cart", http.MethodPost, "/checkout/cart/items", map[string]any{"product_ref": "apple", "quantity": 1, "version": 5}, http.StatusConflict, "stale_cart"},
		{"bad quantity", http.MethodPost, "/checkout/cart/items", map[string]any{"product_ref": "apple", "quantity": 0, "version": 0}, http.StatusUnprocessableEntity, "invalid_quantity"},
		{"unknown product", http.MethodPost, "/checkout/cart/items", map[string]any{"product_ref": "caviar", "quantity": 1, "version": 0}, http.StatusNotFound, "not_found"},
		{"empty cart", http.MethodPost, "/checkout/orders", nil, http.StatusUnprocessableEntity, "empty_cart"},
		{"malformed id", http.MethodGet, "/checkout/orders/not-an-id", nil, http.StatusBadRequest, "validation"},
		{"missing version", http.MethodDelete, "/checkout/cart", nil, http.StatusBadRequest, "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := a.do(tt.method, tt.path, a.shopper, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(body))
		})
	}
}

func TestWebhookSignature(t *testing.T) {
	a := newAPI(t)

	rec, body := a.do(http.MethodPost, "/checkout/webhooks/payments", "", []byte(`{"reference":"x"}`),
		httpapi.SignatureHeader, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_signature", errorCode(body))

	payload := []byte(`{"reference":"x"}`)
	rec, body = a.do(http.MethodPost, "/checkout/webhooks/payments", "", payload,
		httpapi.SignatureHeader, httpapi.Sign(webhookSecret, payload))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_event", errorCode(body))
}

func TestHealth(t *testing.T) {
	a := newAPI(t)

	rec, _ := a.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhooksForSharedReference(t *testing.T) {
	a := newAPI(t)

	paid := func(token string) string {
		rec, _ := a.do(http.MethodPost, "/checkout/cart/items", token,
			map[string]any{"product_ref": "apple", "quantity": 1, "version": 0})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec, ord := a.do(http.MethodPost, "/checkout/orders", token, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		orderID := ord["id"].(string)
		oid, err := id.ParseOrderID(orderID)
		require.NoError(t, err)

		rec, pay := a.do(http.MethodPost, "/checkout/orders/"+orderID+"/payments", token,
			map[string]any{"method": "upi"}, "Idempotency-Key", "kiosk-1")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Equal(t, "kiosk-1", pay["reference"])

		event, err := json.Marshal(payment.Event{
			Provider:      "stub",
			Reference:     "kiosk-1",
			OrderID:       oid,
			Amount:        types.INR(118),
			Status:        payment.EventSuccess,
			TransactionID: "txn_" + orderID,
		})
		require.NoError(t, err)

		rec, out := a.do(http.MethodPost, "/checkout/webhooks/payments", "", event,
			httpapi.SignatureHeader, httpapi.Sign(webhookSecret, event))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, true, out["applied"], "each order's confirmation is its own delivery")
		return orderID
	}

	first := paid(a.shopper)
	second := paid(a.other)

	for token, orderID := range map[string]string{a.shopper: first, a.other: second} {
		rec, ord := a.do(http.MethodGet, "/checkout/orders/"+orderID, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "paid", ord["status"])
	}
}

func TestQuantityAboveStock(t *testing.T) {
	a := newAPI(t)

	rec, snap := a.do(http.MethodPost, "/checkout/cart/items", a.shopper,
		map[string]any{"product_ref": "apple", "quantity": 1, "version": 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	items := snap["items"].([]any)
	itemID := items[0].(map[string]any)["id"].(string)

	for _, qty := range []int64{51, 1 << 62} {
		rec, body := a.do(http.MethodPatch, "/checkout/cart/items/"+itemID, a.shopper,
			map[string]any{"quantity": qty, "version": 1})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "qty %d", qty)
		assert.Equal(t, "insufficient_stock", errorCode(body))
	}

	rec, snap = a.do(http.MethodGet, "/checkout/cart", a.shopper, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(100), amount(snap["totals"].(map[string]any), "subtotal"))
}
