package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/orders"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
)

// PaymentResult is returned to the client that asked to pay.
type PaymentResult struct {
	PaymentIntentID string            `json:"paymentIntentId"`
	ClientSecret    string            `json:"clientSecret"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	QRCode          *orders.PaymentQR `json:"qrCode"`
}

// RequestPayment opens a PromptPay intent for a pending order and stores the
// intent and QR on it. The amount is always the order's stored total.
func (e *Engine) RequestPayment(ctx context.Context, ownerID, orderID string) (*PaymentResult, error) {
	acct, err := e.accounts.Get(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	if acct.Email == "" {
		return nil, ErrAccountEmailMissing
	}

	o, err := e.GetOrder(ctx, ownerID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Terminal() {
		return nil, fmt.Errorf("%w: status is %s", ErrOrderNotPending, o.State().Status())
	}
	amount, ok := o.TotalPrice.MinorUnits()
	if !ok {
		return nil, &PaymentAmountInvalidError{Overflow: true}
	}
	if amount <= 0 {
		return nil, &PaymentAmountInvalidError{AmountMinor: amount}
	}

	in, err := e.gateway.CreateIntent(ctx, payments.IntentRequest{
		AmountMinor:    amount,
		Currency:       e.cfg.Currency,
		Email:          acct.Email,
		Metadata:       payments.Metadata{OwnerID: ownerID, OrderID: orderID},
		IdempotencyKey: "promptpay-" + orderID,
	})
	if err != nil {
		e.metrics.PaymentRequested(false)
		return nil, err
	}
	e.metrics.PaymentRequested(true)

	var qr *orders.PaymentQR
	if in.QR != nil {
		qr = &orders.PaymentQR{
			Data:      in.QR.Data,
			ImageURL:  in.QR.ImageURL,
			ImageType: in.QR.ImageType,
			HostedURL: in.QR.HostedURL,
			ExpiresAt: in.QR.ExpiresAt,
		}
	}
	err = e.orders.AttachPayment(ctx, ownerID, orderID, orders.PaymentDetails{
		IntentID:     in.ID,
		ClientSecret: in.ClientSecret,
		QR:           qr,
	})
	if errors.Is(err, orders.ErrStatusMismatch) {
		return nil, fmt.Errorf("%w: settled while requesting payment", ErrOrderNotPending)
	}
	if err != nil {
		return nil, err
	}

	currency := in.Currency
	if currency == "" {
		currency = e.cfg.Currency
	}
	e.logger.Info().
		Str("order_id", orderID).
		Str("payment_intent_id", in.ID).
		Int64("amount", amount).
		Msg("payment requested")
	return &PaymentResult{
		PaymentIntentID: in.ID,
		ClientSecret:    in.ClientSecret,
		Amount:          amount,
		Currency:        currency,
		QRCode:          qr,
	}, nil
}

// ConfirmManually settles an order the buyer says is paid. The buyer's word is
// not enough: the intent is read back from the gateway and only a succeeded
// intent that belongs to this order settles it.
func (e *Engine) ConfirmManually(ctx context.Context, ownerID, orderID string) (*orders.Order, error) {
	o, err := e.orders.Get(ctx, ownerID, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if _, paid := o.State().(orders.Paid); paid {
		return o, nil
	}
	if o.PaymentIntentID == "" {
		return nil, &PaymentNotConfirmedError{Reason: "no payment has been requested for this order"}
	}

	in, err := e.gateway.RetrieveIntent(ctx, o.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if in.Metadata.OrderID != orderID || in.Metadata.OwnerID != ownerID {
		return nil, &PaymentNotConfirmedError{IntentID: in.ID, Reason: "payment intent belongs to another order"}
	}
	if !in.Succeeded() {
		return nil, &PaymentNotConfirmedError{IntentID: in.ID, Status: in.Status}
	}

	outcome, err := e.settlePaid(ctx, ownerID, orderID, receiptOf(in.ID, in.PaymentMethod, in.AmountReceived, in.Currency))
	if err != nil {
		return nil, err
	}
	if outcome == OutcomeLate {
		return nil, fmt.Errorf("%w: order already failed", ErrOrderNotPending)
	}
	settled, err := e.orders.Get(ctx, ownerID, orderID)
	if err != nil {
		return nil, err
	}
	if settled == nil {
		return nil, ErrOrderNotFound
	}
	return settled, nil
}

func receiptOf(intentID, method string, amountMinor int64, currency string) orders.Receipt {
	return orders.Receipt{
		PaymentIntentID: intentID,
		PaymentMethod:   method,
		AmountMinor:     amountMinor,
		Currency:        currency,
	}
}
