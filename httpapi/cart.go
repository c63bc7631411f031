package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/id"
)

type addItemRequest struct {
	ProductRef string `json:"product_ref"`
	Quantity   int64  `json:"quantity"`
	Version    int64  `json:"version"`
}

type updateItemRequest struct {
	Quantity int64 `json:"quantity"`
	Version  int64 `json:"version"`
}

func (h *Handler) getCart(c echo.Context) error {
	snap, err := h.engine.Cart(c.Request().Context(), subject(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) addItem(c echo.Context) error {
	var req addItemRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	snap, err := h.engine.AddToCart(c.Request().Context(), subject(c), req.Version, req.ProductRef, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) updateItem(c echo.Context) error {
	itemID, err := pathID(c, "itemID", id.ParseCartItemID)
	if err != nil {
		return err
	}
	var req updateItemRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	snap, err := h.engine.UpdateCartItem(c.Request().Context(), subject(c), req.Version, itemID, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) removeItem(c echo.Context) error {
	itemID, err := pathID(c, "itemID", id.ParseCartItemID)
	if err != nil {
		return err
	}
	version, err := versionParam(c)
	if err != nil {
		return err
	}

	snap, err := h.engine.RemoveCartItem(c.Request().Context(), subject(c), version, itemID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) clearCart(c echo.Context) error {
	version, err := versionParam(c)
	if err != nil {
		return err
	}

	snap, err := h.engine.ClearCart(c.Request().Context(), subject(c), version)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// versionParam reads the expected cart version from the "version" query
// parameter; DELETE requests carry no body.
func versionParam(c echo.Context) (int64, error) {
	raw := c.QueryParam("version")
	if raw == "" {
		return 0, fmt.Errorf("%w: version is required", checkout.ErrInvalidInput)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: version must be a non-negative integer", checkout.ErrInvalidInput)
	}
	return v, nil
}

func pathID(c echo.Context, name string, parse func(string) (id.ID, error)) (id.ID, error) {
	v, err := parse(c.Param(name))
	if err != nil {
		return id.Nil, fmt.Errorf("%w: %s: %w", checkout.ErrInvalidInput, name, err)
	}
	return v, nil
}

func intQuery(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", checkout.ErrInvalidInput, name)
	}
	return v, nil
}
