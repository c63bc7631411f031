package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
)

type initiatePaymentRequest struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

// ──────────────────────────────────────────────────
// Orders
// ──────────────────────────────────────────────────

func (h *Handler) compileOrder(c echo.Context) error {
	o, err := h.engine.CompileOrder(c.Request().Context(), subject(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) listOrders(c echo.Context) error {
	opts := order.ListOpts{Status: order.Status(c.QueryParam("status"))}
	if opts.Status != "" && !opts.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", checkout.ErrInvalidInput, opts.Status)
	}

	var err error
	if opts.Limit, err = intQuery(c, "limit"); err != nil {
		return err
	}
	if opts.Offset, err = intQuery(c, "offset"); err != nil {
		return err
	}

	orders, err := h.engine.ListOrders(c.Request().Context(), subject(c), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) getOrder(c echo.Context) error {
	orderID, err := pathID(c, "orderID", id.ParseOrderID)
	if err != nil {
		return err
	}
	o, err := h.engine.GetOwnedOrder(c.Request().Context(), subject(c), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) cancelOrder(c echo.Context) error {
	orderID, err := pathID(c, "orderID", id.ParseOrderID)
	if err != nil {
		return err
	}
	o, err := h.engine.CancelOrder(c.Request().Context(), subject(c), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

func (h *Handler) initiatePayment(c echo.Context) error {
	orderID, err := pathID(c, "orderID", id.ParseOrderID)
	if err != nil {
		return err
	}
	var req initiatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Method = strings.TrimSpace(req.Method); req.Method == "" {
		req.Method = "upi"
	}
	if ref := c.Request().Header.Get("Idempotency-Key"); ref != "" && req.Reference == "" {
		req.Reference = ref
	}

	p, err := h.engine.InitiatePayment(c.Request().Context(), subject(c), orderID, req.Method, req.Reference)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) getPayment(c echo.Context) error {
	paymentID, err := pathID(c, "paymentID", id.ParsePaymentID)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	p, err := h.engine.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	// Ownership is checked through the order; foreign payments look absent.
	if _, err := h.engine.GetOwnedOrder(ctx, subject(c), p.OrderID); err != nil {
		if checkout.IsNotFound(err) {
			return checkout.ErrPaymentNotFound
		}
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// ──────────────────────────────────────────────────
// Exit
// ──────────────────────────────────────────────────

func (h *Handler) issueExitToken(c echo.Context) error {
	orderID, err := pathID(c, "orderID", id.ParseOrderID)
	if err != nil {
		return err
	}
	t, err := h.engine.IssueExitTokenWithRetry(c.Request().Context(), subject(c), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) verifyExitToken(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	res, err := h.engine.VerifyExitToken(c.Request().Context(), req.Token, subject(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
