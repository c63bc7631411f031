package payment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/types"
)

func TestReconcile(t *testing.T) {
	total := types.INR(413)
	orderID := id.NewOrderID()

	event := func(status payment.EventStatus, amount int64) payment.Event {
		return payment.Event{Reference: "ref-1", OrderID: orderID, Amount: types.INR(amount), Status: status}
	}

	tests := []struct {
		name    string
		order   order.Status
		payment payment.Status
		event   payment.Event
		action  payment.Action
		err     error
		review  string
	}{
		{"success applies", order.StatusPendingPayment, payment.StatusInitiated, event(payment.EventSuccess, 413), payment.ActionApplySuccess, nil, ""},
		{"amount mismatch rejected", order.StatusPendingPayment, payment.StatusInitiated, event(payment.EventSuccess, 400), payment.ActionReject, payment.ErrAmountMismatch, payment.ReviewAmountMismatch},
		{"currency mismatch rejected", order.StatusPendingPayment, payment.StatusInitiated, payment.Event{Reference: "ref-1", OrderID: orderID, Amount: types.USD(413), Status: payment.EventSuccess}, payment.ActionReject, payment.ErrAmountMismatch, payment.ReviewAmountMismatch},
		{"duplicate success acknowledged", order.StatusPaid, payment.StatusSuccess, event(payment.EventSuccess, 413), payment.ActionAcknowledge, nil, ""},
		{"duplicate success after exit acknowledged", order.StatusExited, payment.StatusSuccess, event(payment.EventSuccess, 413), payment.ActionAcknowledge, nil, ""},
		{"second attempt succeeding on paid order", order.StatusPaid, payment.StatusInitiated, event(payment.EventSuccess, 413), payment.ActionAcknowledge, nil, payment.ReviewDuplicateCharge},
		{"success on failed attempt while pending", order.StatusPendingPayment, payment.StatusFailed, event(payment.EventSuccess, 413), payment.ActionReject, payment.ErrConflict, payment.ReviewLateSuccess},
		{"success on cancelled order", order.StatusCancelled, payment.StatusInitiated, event(payment.EventSuccess, 413), payment.ActionReject, payment.ErrConflict, payment.ReviewClosedOrder},
		{"failure applies", order.StatusPendingPayment, payment.StatusInitiated, event(payment.EventFailure, 413), payment.ActionApplyFailure, nil, ""},
		{"duplicate failure acknowledged", order.StatusPaymentFailed, payment.StatusFailed, event(payment.EventFailure, 413), payment.ActionAcknowledge, nil, ""},
		{"failure after success ignored", order.StatusPaid, payment.StatusSuccess, event(payment.EventFailure, 413), payment.ActionAcknowledge, nil, ""},
		{"failure for stale attempt on paid order", order.StatusPaid, payment.StatusInitiated, event(payment.EventFailure, 413), payment.ActionFailAttempt, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &payment.Payment{OrderID: orderID, Reference: "ref-1", Status: tt.payment, Amount: total}
			d := payment.Reconcile(tt.order, total, p, tt.event)
			assert.Equal(t, tt.action, d.Action, d.Action.String())
			assert.Equal(t, tt.review, d.Review)
			if tt.err == nil {
				assert.NoError(t, d.Err)
			} else {
				assert.ErrorIs(t, d.Err, tt.err)
			}
		})
	}
}

func TestReconcileReplayIsIdempotent(t *testing.T) {
	total := types.INR(413)
	p := &payment.Payment{Status: payment.StatusInitiated}
	ev := payment.Event{Reference: "r", OrderID: id.NewOrderID(), Amount: total, Status: payment.EventSuccess}

	first := payment.Reconcile(order.StatusPendingPayment, total, p, ev)
	assert.Equal(t, payment.ActionApplySuccess, first.Action)

	p.Status = payment.StatusSuccess
	second := payment.Reconcile(order.StatusPaid, total, p, ev)
	assert.Equal(t, payment.ActionAcknowledge, second.Action)
	assert.Empty(t, second.Review)
}

func TestEventValidate(t *testing.T) {
	valid := payment.Event{Reference: "r", OrderID: id.NewOrderID(), Amount: types.INR(1), Status: payment.EventSuccess}
	assert.NoError(t, valid.Validate())

	noRef := valid
	noRef.Reference = ""
	assert.ErrorIs(t, noRef.Validate(), payment.ErrInvalidEvent)

	noOrder := valid
	noOrder.OrderID = id.Nil
	assert.ErrorIs(t, noOrder.Validate(), payment.ErrInvalidEvent)

	badStatus := valid
	badStatus.Status = "pending"
	assert.ErrorIs(t, badStatus.Validate(), payment.ErrInvalidEvent)
}
