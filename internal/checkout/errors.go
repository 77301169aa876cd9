package checkout

import (
	"errors"
	"fmt"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/inventory"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrAccountNotFound = errors.New("user not found")
	// ErrAccountEmailMissing is returned when the buyer has no email to attach
	// to the PromptPay billing details.
	ErrAccountEmailMissing = errors.New("no email found in profile")
	ErrOrderNotPending     = errors.New("order is not pending")
)

// InvalidOrderError rejects a cart selection before anything is written.
type InvalidOrderError struct {
	Reason string
}

func (e *InvalidOrderError) Error() string { return "invalid order: " + e.Reason }

// InsufficientStockError reports a selection larger than the product's stock.
type InsufficientStockError struct {
	Product   inventory.Ref
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Product, e.Requested, e.Available)
}

// PaymentAmountInvalidError is returned when an order's total rounds to zero
// or less in minor units, or is too large to express in them.
type PaymentAmountInvalidError struct {
	AmountMinor int64
	// Overflow is set when the total does not fit in minor units; AmountMinor
	// is then zero.
	Overflow bool
}

func (e *PaymentAmountInvalidError) Error() string {
	if e.Overflow {
		return "order amount exceeds the payable range"
	}
	return fmt.Sprintf("order amount must be greater than zero (got %d)", e.AmountMinor)
}

// PaymentNotConfirmedError means the gateway does not (yet) report the order's
// payment as succeeded.
type PaymentNotConfirmedError struct {
	IntentID string
	Status   string
	Reason   string
}

func (e *PaymentNotConfirmedError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("payment not confirmed: intent %s is %s", e.IntentID, e.Status)
	}
	return "payment not confirmed: " + e.Reason
}
