package payment

import (
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/types"
)

// Action is what the coordinator must do with a confirmation event.
type Action int

const (
	// ActionApplySuccess moves the order to paid and the payment to success.
	ActionApplySuccess Action = iota + 1
	// ActionApplyFailure moves the order to payment_failed and the payment to failed.
	ActionApplyFailure
	// ActionFailAttempt fails the payment only; the order is past caring.
	ActionFailAttempt
	// ActionAcknowledge accepts the event without changing anything.
	ActionAcknowledge
	// ActionReject refuses the event with Decision.Err.
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionApplySuccess:
		return "apply_success"
	case ActionApplyFailure:
		return "apply_failure"
	case ActionFailAttempt:
		return "fail_attempt"
	case ActionAcknowledge:
		return "acknowledge"
	case ActionReject:
		return "reject"
	}
	return "unknown"
}

// Decision is the result of Reconcile. A non-empty Review asks for the
// payment to be flagged for manual reconciliation.
type Decision struct {
	Action Action
	Err    error
	Review string
}

// Review reasons.
const (
	ReviewAmountMismatch  = "amount_mismatch"
	ReviewDuplicateCharge = "duplicate_charge"
	ReviewClosedOrder     = "captured_on_closed_order"
	ReviewLateSuccess     = "success_after_failure"
)

// Reconcile decides what a confirmation event means given the current order
// status and total and the payment it refers to. It has no side effects.
// Replaying an event that was already applied always yields ActionAcknowledge,
// so the coordinator can call Reconcile again after losing a race.
func Reconcile(status order.Status, total types.Money, p *Payment, ev Event) Decision {
	if !ev.Amount.Equal(total) {
		return Decision{Action: ActionReject, Err: ErrAmountMismatch, Review: ReviewAmountMismatch}
	}

	if ev.Status == EventFailure {
		return reconcileFailure(status, p)
	}
	return reconcileSuccess(status, p)
}

func reconcileSuccess(status order.Status, p *Payment) Decision {
	switch {
	case p.Status == StatusSuccess:
		return Decision{Action: ActionAcknowledge}
	case status == order.StatusPendingPayment && p.Status == StatusInitiated:
		return Decision{Action: ActionApplySuccess}
	case status == order.StatusPendingPayment:
		return Decision{Action: ActionReject, Err: ErrConflict, Review: ReviewLateSuccess}
	case status.IsSettled():
		return Decision{Action: ActionAcknowledge, Review: ReviewDuplicateCharge}
	default:
		return Decision{Action: ActionReject, Err: ErrConflict, Review: ReviewClosedOrder}
	}
}

func reconcileFailure(status order.Status, p *Payment) Decision {
	switch {
	case p.Status != StatusInitiated:
		return Decision{Action: ActionAcknowledge}
	case status == order.StatusPendingPayment:
		return Decision{Action: ActionApplyFailure}
	default:
		return Decision{Action: ActionFailAttempt}
	}
}
