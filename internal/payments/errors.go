package payments

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
)

// GatewayError wraps a failure reported by the payment provider.
type GatewayError struct {
	Op      string
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payments: %s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("payments: %s: %s", e.Op, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func gatewayError(op string, err error) error {
	ge := &GatewayError{Op: op, Message: err.Error(), Err: err}
	var se *stripe.Error
	if errors.As(err, &se) {
		ge.Code = string(se.Code)
		ge.Message = se.Msg
		ge.Status = se.HTTPStatusCode
	}
	return ge
}

// SignatureError means a webhook delivery could not be authenticated.
type SignatureError struct{ Err error }

func (e *SignatureError) Error() string { return "webhook signature: " + e.Err.Error() }

func (e *SignatureError) Unwrap() error { return e.Err }

// MalformedEventError means a signed delivery carried an unreadable event.
type MalformedEventError struct{ Err error }

func (e *MalformedEventError) Error() string { return "malformed webhook event: " + e.Err.Error() }

func (e *MalformedEventError) Unwrap() error { return e.Err }
