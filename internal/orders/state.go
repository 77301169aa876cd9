package orders

import (
	"fmt"
	"time"
)

// State is the closed set of order states: Pending, Paid or Failed.
type State interface {
	Status() Status
	isState()
}

// Pending is an order waiting for payment.
type Pending struct{ Since time.Time }

// Paid is a settled order.
type Paid struct{ At time.Time }

// Failed is a terminal failure: the gateway reported a failed payment or the order
// expired before payment.
type Failed struct {
	Reason string
	At     time.Time
}

func (Pending) Status() Status { return StatusPending }
func (Paid) Status() Status    { return StatusPaid }
func (Failed) Status() Status  { return StatusFailed }

func (Pending) isState() {}
func (Paid) isState()    {}
func (Failed) isState()  {}

// State derives the variant from the persisted fields.
func (o Order) State() State {
	switch o.Status {
	case StatusPaid:
		s := Paid{}
		if o.PaidAt != nil {
			s.At = *o.PaidAt
		}
		return s
	case StatusFailed:
		s := Failed{Reason: o.FailureReason}
		switch {
		case o.FailedAt != nil:
			s.At = *o.FailedAt
		case o.ExpiredAt != nil:
			s.At = *o.ExpiredAt
		}
		if s.Reason == "" && o.ExpiredAt != nil {
			s.Reason = ReasonExpired
		}
		return s
	default:
		return Pending{Since: o.CreatedAt}
	}
}

// Terminal reports whether the order can no longer change status.
func (o Order) Terminal() bool { return o.Status == StatusPaid || o.Status == StatusFailed }

// Transition is a status change together with the attributes written alongside it.
// Stores persist it conditionally on the order still being in From.
type Transition struct {
	From   Status
	To     Status
	At     time.Time
	Fields map[string]interface{}
}

// TransitionError reports an attempt to leave a terminal state.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal order transition %s -> %s", e.From, e.To)
}

// MarkPaid moves a pending order to paid and records the receipt.
func (o *Order) MarkPaid(at time.Time, r Receipt) (Transition, error) {
	if o.Status != StatusPending {
		return Transition{}, &TransitionError{From: o.Status, To: StatusPaid}
	}
	received := MoneyFromMinor(r.AmountMinor)
	method := r.PaymentMethod
	if method == "" {
		method = "promptpay"
	}

	o.Status = StatusPaid
	o.PaidAt = &at
	o.UpdatedAt = at
	o.PaymentMethod = method
	o.AmountReceived = &received
	o.Currency = r.Currency

	fields := map[string]interface{}{
		"paid_at":         at,
		"payment_method":  method,
		"amount_received": received,
		"currency":        r.Currency,
	}
	if r.PaymentIntentID != "" {
		o.PaymentIntentID = r.PaymentIntentID
		fields["payment_intent_id"] = r.PaymentIntentID
	}
	return Transition{From: StatusPending, To: StatusPaid, At: at, Fields: fields}, nil
}

// MarkFailed moves a pending order to failed because the gateway declined it.
func (o *Order) MarkFailed(at time.Time) (Transition, error) {
	return o.fail(ReasonPaymentFailed, at)
}

// MarkExpired moves a pending order to failed because nobody paid in time.
func (o *Order) MarkExpired(at time.Time) (Transition, error) {
	return o.fail(ReasonExpired, at)
}

func (o *Order) fail(reason string, at time.Time) (Transition, error) {
	if o.Status != StatusPending {
		return Transition{}, &TransitionError{From: o.Status, To: StatusFailed}
	}
	o.Status = StatusFailed
	o.FailedAt = &at
	o.FailureReason = reason
	o.UpdatedAt = at

	fields := map[string]interface{}{
		"failed_at":      at,
		"failure_reason": reason,
	}
	if reason == ReasonExpired {
		o.ExpiredAt = &at
		fields["expired_at"] = at
	}
	return Transition{From: StatusPending, To: StatusFailed, At: at, Fields: fields}, nil
}
