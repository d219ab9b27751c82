package model

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type EventKind string

const (
	EventStaffSetStatus   EventKind = "STAFF_SET_STATUS"
	EventPaymentSucceeded EventKind = "PAYMENT_SUCCEEDED"
	EventPaymentFailed    EventKind = "PAYMENT_FAILED"
	EventPaymentRefunded  EventKind = "PAYMENT_REFUNDED"
	EventPaymentRetried   EventKind = "PAYMENT_RETRIED"
)

// Event is one input to the order state machine, coming either from a staff
// action or from a reconciled provider callback.
type Event struct {
	Kind        EventKind
	NewStatus   OrderStatus // EventStaffSetStatus only
	ProviderRef string      // payment events only
	Reason      string      // EventPaymentFailed only
}

// statusNext is the admissible status lattice. CANCELLED is additionally
// reachable from any non-terminal state.
var statusNext = map[OrderStatus]OrderStatus{
	StatusPending:   StatusConfirmed,
	StatusConfirmed: StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusDelivered,
}

// CanTransition reports whether status `to` is reachable from `from` in a
// single step.
func CanTransition(from, to OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return statusNext[from] == to
}

// Apply computes the order state after an event. It is a pure function of
// (current state, event): no I/O, no clock reads beyond the supplied now.
// The returned bool reports whether the state actually changed; callers use
// it to suppress side effects for no-op events (e.g. a second success
// callback for an order that is already PAID).
func Apply(o Order, ev Event, now time.Time) (Order, bool, error) {
	switch ev.Kind {
	case EventStaffSetStatus:
		if !CanTransition(o.Status, ev.NewStatus) {
			return o, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, ev.NewStatus)
		}
		o.Status = ev.NewStatus
		stampStatus(&o, ev.NewStatus, now)
		return o, true, nil

	case EventPaymentSucceeded:
		if o.PaymentStatus == PaymentPaid {
			return o, false, nil
		}
		if o.PaymentStatus == PaymentRefunded {
			return o, false, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, o.PaymentStatus, PaymentPaid)
		}
		o.PaymentStatus = PaymentPaid
		if o.PaidAt == nil {
			t := now
			o.PaidAt = &t
		}
		// Auto-confirm on payment: cash orders are confirmed by staff, card
		// orders by a successful charge.
		if o.Status == StatusPending {
			o.Status = StatusConfirmed
			stampStatus(&o, StatusConfirmed, now)
		}
		return o, true, nil

	case EventPaymentFailed:
		// A failure never downgrades a paid order and never cancels it; the
		// guest is expected to retry with another method.
		if o.PaymentStatus != PaymentPending {
			return o, false, nil
		}
		o.PaymentStatus = PaymentFailed
		return o, true, nil

	case EventPaymentRefunded:
		if o.PaymentStatus != PaymentPaid {
			return o, false, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, o.PaymentStatus, PaymentRefunded)
		}
		o.PaymentStatus = PaymentRefunded
		return o, true, nil

	case EventPaymentRetried:
		// A fresh attempt after a failed one reopens the payment.
		switch o.PaymentStatus {
		case PaymentFailed:
			o.PaymentStatus = PaymentPending
			return o, true, nil
		case PaymentPending:
			return o, false, nil
		default:
			return o, false, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, o.PaymentStatus, PaymentPending)
		}

	default:
		return o, false, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev.Kind)
	}
}

// stampStatus records the first time an order reached a status; later writes
// for the same status are ignored (first-write-wins).
func stampStatus(o *Order, status OrderStatus, now time.Time) {
	t := now
	switch status {
	case StatusConfirmed:
		if o.ConfirmedAt == nil {
			o.ConfirmedAt = &t
		}
	case StatusPreparing:
		if o.PreparedAt == nil {
			o.PreparedAt = &t
		}
	case StatusReady:
		if o.ReadyAt == nil {
			o.ReadyAt = &t
		}
	case StatusDelivered:
		if o.DeliveredAt == nil {
			o.DeliveredAt = &t
		}
	case StatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &t
		}
	}
}
