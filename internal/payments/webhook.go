package payments

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Outcome is what a payment event says about its intent.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Event is a verified gateway notification reduced to what reconciliation needs.
// It is also the message body queued for the worker.
type Event struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Created         time.Time `json:"created"`
	Outcome         Outcome   `json:"outcome,omitempty"`
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	Metadata        Metadata  `json:"metadata"`
	AmountReceived  int64     `json:"amountReceived,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	PaymentMethod   string    `json:"paymentMethod,omitempty"`
	FailureMessage  string    `json:"failureMessage,omitempty"`
}

// Relevant reports whether the event changes an order. Other event types are
// acknowledged and ignored.
func (e Event) Relevant() bool { return e.Outcome != "" }

// WebhookVerifier authenticates Stripe webhook deliveries.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewWebhookVerifier returns a verifier for the endpoint's signing secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Verify checks the Stripe-Signature header against the raw body and decodes
// the event. Signature problems return *SignatureError; a correctly signed but
// unreadable body returns *MalformedEventError.
func (v *WebhookVerifier) Verify(payload []byte, header string) (Event, error) {
	if err := webhook.ValidatePayloadWithTolerance(payload, header, v.secret, v.tolerance); err != nil {
		return Event{}, &SignatureError{Err: err}
	}
	sev, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, &MalformedEventError{Err: err}
	}
	return ParseEvent(sev)
}

// ParseEvent reduces a Stripe event. payment_intent.succeeded and
// payment_intent.payment_failed carry an intent; any other type comes back
// with no outcome.
func ParseEvent(sev stripe.Event) (Event, error) {
	ev := Event{
		ID:      sev.ID,
		Type:    string(sev.Type),
		Created: time.Unix(sev.Created, 0).UTC(),
	}
	switch sev.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		ev.Outcome = OutcomeSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		ev.Outcome = OutcomeFailed
	default:
		return ev, nil
	}
	if sev.Data == nil || len(sev.Data.Raw) == 0 {
		return Event{}, &MalformedEventError{Err: errors.New("event has no data object")}
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(sev.Data.Raw, &pi); err != nil {
		return Event{}, &MalformedEventError{Err: err}
	}
	in := intentFrom(&pi)
	ev.PaymentIntentID = in.ID
	ev.Metadata = in.Metadata
	ev.AmountReceived = in.AmountReceived
	ev.Currency = in.Currency
	ev.PaymentMethod = in.PaymentMethod
	ev.FailureMessage = in.FailureMessage
	return ev, nil
}
