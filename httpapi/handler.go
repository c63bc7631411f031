// Package httpapi exposes the checkout engine over HTTP with echo.
//
// Shopper routes require a JWT with role "shopper"; the gate verification
// route requires role "staff". Provider webhooks authenticate by signature
// instead of a token.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/idempotency"
	"github.com/xraph/checkout/payment"
)

// BasePath prefixes every checkout route.
const BasePath = "/checkout"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// WebhookParser turns a signed provider delivery into a payment event.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payment.Event, error)
}

// Handler serves the checkout API.
type Handler struct {
	engine        *checkout.Engine
	logger        *slog.Logger
	jwtSecret     []byte
	webhookSecret []byte
	stripe        WebhookParser
	idem          idempotency.Store
	readiness     []func(context.Context) error
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the base logger for request logs.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithWebhookSecret enables the generic HMAC-signed payment webhook.
func WithWebhookSecret(secret []byte) Option {
	return func(h *Handler) { h.webhookSecret = secret }
}

// WithStripeWebhook enables the Stripe webhook route.
func WithStripeWebhook(p WebhookParser) Option {
	return func(h *Handler) { h.stripe = p }
}

// WithIdempotency sets the store used to deduplicate webhook deliveries.
func WithIdempotency(s idempotency.Store) Option {
	return func(h *Handler) { h.idem = s }
}

// WithReadinessCheck adds a dependency check to /health/ready.
func WithReadinessCheck(check func(context.Context) error) Option {
	return func(h *Handler) { h.readiness = append(h.readiness, check) }
}

// New creates a Handler for eng. jwtSecret verifies bearer tokens.
func New(eng *checkout.Engine, jwtSecret []byte, opts ...Option) *Handler {
	h := &Handler{
		engine:    eng,
		logger:    eng.Logger(),
		jwtSecret: jwtSecret,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.idem == nil {
		h.idem = idempotency.NewMemoryStore(idempotencyTTL)
	}
	return h
}

// NewServer returns an echo instance with the standard middleware stack and
// every route registered.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), requestLogger(h.logger))
	e.Use(middleware.BodyLimit("64K"))

	h.Register(e)
	return e
}

// Register mounts the routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health/live", h.live)
	e.GET("/health/ready", h.ready)

	g := e.Group(BasePath)

	shopper := g.Group("", RequireRole(h.jwtSecret, RoleShopper))
	shopper.GET("/cart", h.getCart)
	shopper.POST("/cart/items", h.addItem)
	shopper.PATCH("/cart/items/:itemID", h.updateItem)
	shopper.DELETE("/cart/items/:itemID", h.removeItem)
	shopper.DELETE("/cart", h.clearCart)

	shopper.POST("/orders", h.compileOrder)
	shopper.GET("/orders", h.listOrders)
	shopper.GET("/orders/:orderID", h.getOrder)
	shopper.POST("/orders/:orderID/cancel", h.cancelOrder)
	shopper.POST("/orders/:orderID/payments", h.initiatePayment)
	shopper.GET("/payments/:paymentID", h.getPayment)
	shopper.POST("/orders/:orderID/exit-token", h.issueExitToken)

	staff := g.Group("/exit", RequireRole(h.jwtSecret, RoleStaff))
	staff.POST("/verify", h.verifyExitToken)

	if len(h.webhookSecret) > 0 {
		g.POST("/webhooks/payments", h.paymentWebhook)
	}
	if h.stripe != nil {
		g.POST("/webhooks/stripe", h.stripeWebhook)
	}
}

func (h *Handler) live(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ready(c echo.Context) error {
	ctx := c.Request().Context()
	checks := append([]func(context.Context) error{h.engine.Health}, h.readiness...)
	for _, check := range checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
