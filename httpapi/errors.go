package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/internal/logging"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure. Code is stable and machine readable.
type ErrorDetail struct {
	Code    string `json:"code"`
	Class   string `json:"class,omitempty"`
	Message string `json:"message"`
}

// StatusFor maps an engine error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, checkout.ErrWebhookSignature):
		return http.StatusUnauthorized
	case errors.Is(err, checkout.ErrInvalidInput):
		return http.StatusBadRequest
	}

	switch checkout.Classify(err) {
	case checkout.ClassValidation, checkout.ClassExternalMismatch:
		return http.StatusUnprocessableEntity
	case checkout.ClassNotFound:
		return http.StatusNotFound
	case checkout.ClassStateConflict, checkout.ClassConcurrency:
		return http.StatusConflict
	case checkout.ClassForbidden:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

// errorHandler renders engine errors with their class and reason code.
// echo.HTTPErrors keep their own status.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		_ = c.JSON(he.Code, ErrorBody{Error: ErrorDetail{Code: codeForStatus(he.Code), Message: msg}})
		return
	}

	status := StatusFor(err)
	detail := ErrorDetail{
		Code:    checkout.ReasonCode(err),
		Class:   string(checkout.Classify(err)),
		Message: err.Error(),
	}
	if status == http.StatusServiceUnavailable {
		logging.FromContext(c.Request().Context()).Error("request failed", "error", err)
		detail.Message = "service temporarily unavailable"
	}
	_ = c.JSON(status, ErrorBody{Error: detail})
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "body_too_large"
	default:
		return "http_error"
	}
}
