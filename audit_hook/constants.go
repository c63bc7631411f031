package audithook

// Action constants for audit events.
const (
	// Cart actions
	ActionCartUpdated = "cart.updated"

	// Order actions
	ActionOrderCompiled  = "order.compiled"
	ActionOrderCancelled = "order.cancelled"
	ActionOrderExpired   = "order.expired"

	// Payment actions
	ActionPaymentInitiated = "payment.initiated"
	ActionOrderPaid        = "order.paid"
	ActionPaymentFailed    = "payment.failed"
	ActionPaymentFlagged   = "payment.flagged"

	// Exit actions
	ActionExitTokenIssued = "exit.token.issued"
	ActionExitVerified    = "exit.verified"
	ActionExitDenied      = "exit.denied"
)

// Resource constants for audit events.
const (
	ResourceCart      = "cart"
	ResourceOrder     = "order"
	ResourcePayment   = "payment"
	ResourceExitToken = "exit_token"
)

// Category constants for audit events.
const (
	CategoryShopping = "shopping"
	CategoryPayment  = "payment"
	CategoryAccess   = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
