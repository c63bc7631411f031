package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/internal/logging"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/provider/stripe"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Checkout-Signature"

const (
	idempotencyTTL   = 24 * time.Hour
	idempotencyScope = "payment-webhook"
)

// Sign returns the signature a provider sends for body.
func Sign(secret, body []byte) string {
	return hex.EncodeToString(bodyMAC(secret, body))
}

func verifySignature(secret, body []byte, sig string) error {
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(got, bodyMAC(secret, body)) {
		return checkout.ErrWebhookSignature
	}
	return nil
}

func bodyMAC(secret, body []byte) []byte {
	m := hmac.New(sha256.New, secret)
	m.Write(body)
	return m.Sum(nil)
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if len(body) > maxBodyBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "body too large")
	}
	return body, nil
}

func (h *Handler) paymentWebhook(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	if err := verifySignature(h.webhookSecret, body, c.Request().Header.Get(SignatureHeader)); err != nil {
		return err
	}

	var ev payment.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %w", checkout.ErrInvalidEvent, err)
	}
	return h.confirm(c, ev)
}

func (h *Handler) stripeWebhook(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}

	ev, err := h.stripe.ParseWebhook(body, c.Request().Header.Get("Stripe-Signature"))
	if errors.Is(err, stripe.ErrUnhandledEvent) {
		return c.JSON(http.StatusOK, map[string]bool{"ignored": true})
	}
	if err != nil {
		return err
	}
	return h.confirm(c, *ev)
}

// confirm hands ev to the engine once per delivery key. Redeliveries are
// answered from the remembered response.
func (h *Handler) confirm(c echo.Context, ev payment.Event) error {
	ctx := c.Request().Context()
	log := logging.FromContext(ctx)
	key := deliveryKey(ev)

	locked, err := h.idem.TryLock(ctx, idempotencyScope, key)
	if err != nil {
		// Fall through; ConfirmPayment is idempotent.
		log.Warn("idempotency store unavailable", "error", err)
		locked = true
	}
	if !locked {
		if prev, ok, err := h.idem.Recall(ctx, idempotencyScope, key); err == nil && ok {
			return c.JSONBlob(http.StatusOK, []byte(prev))
		}
		return c.JSON(http.StatusAccepted, map[string]string{"status": "processing"})
	}

	out, err := h.engine.ConfirmPayment(ctx, ev)
	if err != nil {
		if relErr := h.idem.Release(ctx, idempotencyScope, key); relErr != nil {
			log.Warn("failed to release webhook claim", "error", relErr)
		}
		return err
	}

	resp, err := json.Marshal(out)
	if err != nil {
		return err
	}
	if err := h.idem.Remember(ctx, idempotencyScope, key, string(resp)); err != nil {
		log.Warn("failed to remember webhook response", "error", err)
	}
	return c.JSONBlob(http.StatusOK, resp)
}

// deliveryKey identifies one confirmation. References are only unique per
// order, so the order ID is part of the key.
func deliveryKey(ev payment.Event) string {
	return ev.Provider + ":" + ev.OrderID.String() + ":" + ev.Reference + ":" + string(ev.Status)
}
