package checkout

import (
	"errors"
	"fmt"

	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/catalog"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/types"
)

// Sentinel errors. Domain packages define the ones their pure functions
// return; they are re-exported here so callers need only this package.
var (
	// General errors
	ErrNotFound      = errors.New("checkout: not found")
	ErrAlreadyExists = errors.New("checkout: already exists")
	ErrInvalidInput  = errors.New("checkout: invalid input")
	ErrForbidden     = errors.New("checkout: forbidden")

	// Cart errors
	ErrCartNotFound     = cart.ErrNotFound
	ErrCartItemNotFound = cart.ErrItemNotFound
	ErrInvalidQuantity  = cart.ErrInvalidQuantity
	ErrStaleCart        = cart.ErrStale
	ErrCurrencyMismatch = errors.New("checkout: product currency differs from checkout currency")
	ErrAmountOverflow   = types.ErrOverflow

	// Catalog errors
	ErrProductNotFound   = catalog.ErrProductNotFound
	ErrInsufficientStock = catalog.ErrInsufficientStock

	// Order errors
	ErrEmptyCart       = order.ErrEmptyCart
	ErrOrderNotFound   = order.ErrNotFound
	ErrInvalidState    = errors.New("checkout: invalid order state")
	ErrOrderNotPending = fmt.Errorf("%w: order is not awaiting payment", ErrInvalidState)
	ErrOrderExpired    = fmt.Errorf("%w: order payment window has expired", ErrInvalidState)

	// Payment errors
	ErrPaymentNotFound  = payment.ErrNotFound
	ErrAmountMismatch   = payment.ErrAmountMismatch
	ErrPaymentConflict  = payment.ErrConflict
	ErrInvalidEvent     = payment.ErrInvalidEvent
	ErrProviderNotReady = errors.New("checkout: payment provider not configured")
	ErrProviderFailed   = errors.New("checkout: payment provider request failed")
	ErrWebhookSignature = errors.New("checkout: webhook signature invalid")

	// Exit token errors
	ErrNotPaid           = errors.New("checkout: order is not paid yet")
	ErrAlreadyExited     = fmt.Errorf("%w: order has already exited", ErrInvalidState)
	ErrExitTokenNotFound = exittoken.ErrNotFound

	// Concurrency errors
	ErrConcurrentUpdate = errors.New("checkout: concurrent update lost the race")

	// Store errors
	ErrStoreNotReady = errors.New("checkout: store not ready")
	ErrStoreClosed   = errors.New("checkout: store is closed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("checkout: validation failed for %s: %s", e.Field, e.Message)
}

// ErrorClass groups errors by how a caller should react to them.
type ErrorClass string

const (
	ClassNone             ErrorClass = ""
	ClassValidation       ErrorClass = "validation"
	ClassNotFound         ErrorClass = "not_found"
	ClassStateConflict    ErrorClass = "state_conflict"
	ClassConcurrency      ErrorClass = "concurrency_conflict"
	ClassExternalMismatch ErrorClass = "external_mismatch"
	ClassForbidden        ErrorClass = "forbidden"
	ClassInfrastructure   ErrorClass = "infrastructure"
)

var classes = []struct {
	class ErrorClass
	errs  []error
}{
	{ClassValidation, []error{ErrInvalidInput, ErrInvalidQuantity, ErrEmptyCart, ErrInsufficientStock, ErrCurrencyMismatch, ErrAmountOverflow, ErrInvalidEvent, ErrWebhookSignature}},
	{ClassNotFound, []error{ErrNotFound, ErrCartNotFound, ErrCartItemNotFound, ErrProductNotFound, ErrOrderNotFound, ErrPaymentNotFound, ErrExitTokenNotFound}},
	{ClassStateConflict, []error{ErrInvalidState, ErrOrderNotPending, ErrOrderExpired, ErrNotPaid, ErrAlreadyExited, ErrPaymentConflict, ErrAlreadyExists}},
	{ClassConcurrency, []error{ErrStaleCart, ErrConcurrentUpdate}},
	{ClassExternalMismatch, []error{ErrAmountMismatch}},
	{ClassForbidden, []error{ErrForbidden}},
}

// Classify returns the class of err. Errors the engine does not recognise are
// infrastructure failures.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var ve ValidationError
	if errors.As(err, &ve) {
		return ClassValidation
	}
	for _, c := range classes {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.class
			}
		}
	}
	return ClassInfrastructure
}

// reasonCodes is ordered most specific first; several state errors wrap
// ErrInvalidState.
var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidQuantity, "invalid_quantity"},
	{ErrEmptyCart, "empty_cart"},
	{ErrInsufficientStock, "insufficient_stock"},
	{ErrCurrencyMismatch, "currency_mismatch"},
	{ErrAmountOverflow, "amount_overflow"},
	{ErrInvalidEvent, "invalid_event"},
	{ErrWebhookSignature, "invalid_signature"},
	{ErrOrderNotPending, "order_not_pending"},
	{ErrOrderExpired, "order_expired"},
	{ErrAlreadyExited, "already_exited"},
	{ErrNotPaid, "not_paid"},
	{ErrPaymentConflict, "payment_conflict"},
	{ErrAlreadyExists, "already_exists"},
	{ErrInvalidState, "invalid_state"},
	{ErrStaleCart, "stale_cart"},
	{ErrConcurrentUpdate, "concurrent_update"},
	{ErrAmountMismatch, "amount_mismatch"},
}

// ReasonCode returns a stable machine-readable code for err, or the class
// name when no specific code exists.
func ReasonCode(err error) string {
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return string(Classify(err))
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return Classify(err) == ClassNotFound
}

// IsStateConflict returns true if the operation was refused because an entity
// is in the wrong state.
func IsStateConflict(err error) bool {
	return Classify(err) == ClassStateConflict
}

// IsConcurrencyConflict returns true if the caller should reread and retry.
func IsConcurrencyConflict(err error) bool {
	return Classify(err) == ClassConcurrency
}

// IsTransient returns true for state conflicts expected to clear on their
// own, such as a payment confirmation that has not arrived yet.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNotPaid)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case ClassInfrastructure, ClassConcurrency:
		return true
	}
	return IsTransient(err)
}
