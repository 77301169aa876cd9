package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/inventory"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/metrics"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/orders"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
)

// Outcome describes what a reconciliation did.
type Outcome string

const (
	OutcomePaid      Outcome = "paid"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate" // already in the target state
	OutcomeLate      Outcome = "late"      // success for an order that had already failed
	OutcomeStale     Outcome = "stale"     // failure for an order that is already paid
	OutcomeNotFound  Outcome = "not_found"
	OutcomeIgnored   Outcome = "ignored"
)

// Reconcile applies a verified gateway event. Deliveries are at-least-once and
// unordered, so every path is safe to repeat. Only errors worth a redelivery
// are returned.
func (e *Engine) Reconcile(ctx context.Context, ev payments.Event) (Outcome, error) {
	if !ev.Relevant() {
		return OutcomeIgnored, nil
	}
	log := e.logger.With().
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Str("payment_intent_id", ev.PaymentIntentID).
		Str("order_id", ev.Metadata.OrderID).
		Logger()
	if !ev.Metadata.Complete() {
		log.Warn().Msg("missing metadata on payment intent")
		return OutcomeIgnored, nil
	}

	var (
		outcome Outcome
		err     error
	)
	switch ev.Outcome {
	case payments.OutcomeSucceeded:
		outcome, err = e.settlePaid(ctx, ev.Metadata.OwnerID, ev.Metadata.OrderID,
			receiptOf(ev.PaymentIntentID, ev.PaymentMethod, ev.AmountReceived, ev.Currency))
	case payments.OutcomeFailed:
		outcome, err = e.settleFailed(ctx, ev.Metadata.OwnerID, ev.Metadata.OrderID)
	default:
		return OutcomeIgnored, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("reconcile failed")
		return "", err
	}
	if outcome == OutcomeNotFound {
		log.Warn().Msg("order not found for payment event")
	} else {
		log.Info().Str("outcome", string(outcome)).Msg("payment event reconciled")
	}
	return outcome, nil
}

// settlePaid takes the stock and flips the order to paid in one transaction.
// The transaction is conditioned on the order still being pending and on every
// product quantity read here; a conflict restarts from the status check.
func (e *Engine) settlePaid(ctx context.Context, ownerID, orderID string, r orders.Receipt) (Outcome, error) {
	for attempt := 1; ; attempt++ {
		o, err := e.orders.Get(ctx, ownerID, orderID)
		if err != nil {
			return "", err
		}
		if o == nil {
			return OutcomeNotFound, nil
		}

		switch st := o.State().(type) {
		case orders.Paid:
			e.metrics.Settled(metrics.OutcomeDuplicate)
			return OutcomeDuplicate, nil
		case orders.Failed:
			return e.flagLate(ctx, o, st, r.PaymentIntentID)
		}

		now := e.now()
		t, err := o.MarkPaid(now, r)
		if err != nil {
			return "", err
		}
		orderItem, err := e.orders.TransitionItem(o, t)
		if err != nil {
			return "", err
		}
		items, adjustments, err := e.inventory.PlanDecrement(ctx, inventory.Demands(o.Items))
		if err != nil {
			return "", err
		}
		items = append(items, orderItem)

		err = e.orders.Transact(ctx, items)
		if err == nil {
			e.metrics.Settled(metrics.OutcomePaid)
			for _, a := range adjustments {
				ev := e.logger.Debug().Str("order_id", orderID).Str("product", a.Ref.String())
				if a.Missing {
					ev.Msg("product deleted, skipped")
					continue
				}
				ev.Int("before", a.Before).Int("after", a.After).Msg("stock decremented")
			}
			return OutcomePaid, nil
		}
		if !errors.Is(err, orders.ErrTransactionConflict) {
			return "", err
		}
		e.metrics.SettleConflict()
		if attempt >= e.cfg.MaxSettleAttempts {
			return "", fmt.Errorf("settle order %s: gave up after %d attempts: %w", orderID, attempt, err)
		}
		e.logger.Debug().Str("order_id", orderID).Int("attempt", attempt).Msg("settlement conflict, retrying")
		if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
			return "", err
		}
	}
}

// flagLate records a success that arrived after the order failed. The order is
// not revived and stock is untouched; the payment needs a manual refund.
func (e *Engine) flagLate(ctx context.Context, o *orders.Order, st orders.Failed, intentID string) (Outcome, error) {
	if o.LatePaymentIntentID != "" && o.LatePaymentIntentID == intentID {
		return OutcomeLate, nil
	}
	err := e.orders.FlagLatePayment(ctx, o.OwnerID, o.OrderID, intentID, e.now())
	if err != nil && !errors.Is(err, orders.ErrStatusMismatch) {
		return "", err
	}
	e.metrics.Settled(metrics.OutcomeLate)
	e.logger.Warn().
		Str("order_id", o.OrderID).
		Str("payment_intent_id", intentID).
		Str("failure_reason", st.Reason).
		Msg("payment succeeded for a failed order; refund required")
	return OutcomeLate, nil
}

func (e *Engine) settleFailed(ctx context.Context, ownerID, orderID string) (Outcome, error) {
	for attempt := 1; ; attempt++ {
		o, err := e.orders.Get(ctx, ownerID, orderID)
		if err != nil {
			return "", err
		}
		if o == nil {
			return OutcomeNotFound, nil
		}
		switch o.State().(type) {
		case orders.Failed:
			return OutcomeDuplicate, nil
		case orders.Paid:
			return OutcomeStale, nil
		}

		t, err := o.MarkFailed(e.now())
		if err != nil {
			return "", err
		}
		err = e.orders.Apply(ctx, o, t)
		if err == nil {
			e.metrics.Settled(metrics.OutcomeFailed)
			return OutcomeFailed, nil
		}
		if !errors.Is(err, orders.ErrStatusMismatch) {
			return "", err
		}
		if attempt >= e.cfg.MaxSettleAttempts {
			return "", fmt.Errorf("fail order %s: gave up after %d attempts: %w", orderID, attempt, err)
		}
	}
}
