package checkout

import (
	"context"
	"errors"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/metrics"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/orders"
)

// GetOrder reads an order, expiring it first if it has been pending too long.
func (e *Engine) GetOrder(ctx context.Context, ownerID, orderID string) (*orders.Order, error) {
	o, err := e.orders.Get(ctx, ownerID, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return e.expireIfStale(ctx, o)
}

// ListOrders returns the account's orders newest first, with stale pending
// orders expired on the way out.
func (e *Engine) ListOrders(ctx context.Context, ownerID string) ([]orders.Order, error) {
	list, err := e.orders.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if !orders.ShouldExpire(list[i], e.now(), e.cfg.ExpiryWindow) {
			continue
		}
		o, err := e.expireIfStale(ctx, &list[i])
		if err != nil {
			return nil, err
		}
		list[i] = *o
	}
	return list, nil
}

// SweepOwner expires every stale pending order of an account and returns how
// many it flipped.
func (e *Engine) SweepOwner(ctx context.Context, ownerID string) (int, error) {
	pending, err := e.orders.ListPending(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range pending {
		if !orders.ShouldExpire(pending[i], e.now(), e.cfg.ExpiryWindow) {
			continue
		}
		o, err := e.expireIfStale(ctx, &pending[i])
		if err != nil {
			return n, err
		}
		if o.FailureReason == orders.ReasonExpired {
			n++
		}
	}
	e.logger.Info().Str("owner_id", ownerID).Int("expired", n).Int("pending", len(pending)).Msg("sweep finished")
	return n, nil
}

// expireIfStale flips a stale pending order to failed. When the conditional
// write loses (the order settled concurrently) the stored order is returned.
func (e *Engine) expireIfStale(ctx context.Context, o *orders.Order) (*orders.Order, error) {
	now := e.now()
	if !orders.ShouldExpire(*o, now, e.cfg.ExpiryWindow) {
		return o, nil
	}
	expired := *o
	t, err := expired.MarkExpired(now)
	if err != nil {
		return nil, err
	}
	err = e.orders.Apply(ctx, &expired, t)
	if errors.Is(err, orders.ErrStatusMismatch) {
		current, gerr := e.orders.Get(ctx, o.OwnerID, o.OrderID)
		if gerr != nil {
			return nil, gerr
		}
		if current == nil {
			return nil, ErrOrderNotFound
		}
		return current, nil
	}
	if err != nil {
		return nil, err
	}
	e.metrics.Settled(metrics.OutcomeExpired)
	e.logger.Info().Str("order_id", o.OrderID).Time("created_at", o.CreatedAt).Msg("order expired")
	return &expired, nil
}
