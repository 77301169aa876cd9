// Package checkout drives an order from cart selection to a terminal state:
// it creates pending orders, requests PromptPay payments, and reconciles
// gateway notifications against order and inventory state.
package checkout

import (
	"context"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/accounts"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/inventory"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/metrics"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/orders"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
)

// OrderStore is the orders table as the engine uses it.
type OrderStore interface {
	Create(ctx context.Context, o *orders.Order) error
	CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, o *orders.Order) error
	Get(ctx context.Context, ownerID, orderID string) (*orders.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]orders.Order, error)
	ListPending(ctx context.Context, ownerID string) ([]orders.Order, error)
	AttachPayment(ctx context.Context, ownerID, orderID string, d orders.PaymentDetails) error
	Apply(ctx context.Context, o *orders.Order, t orders.Transition) error
	TransitionItem(o *orders.Order, t orders.Transition) (types.TransactWriteItem, error)
	FlagLatePayment(ctx context.Context, ownerID, orderID, intentID string, at time.Time) error
	Transact(ctx context.Context, items []types.TransactWriteItem) error
}

// InventoryStore is the products table as the engine uses it.
type InventoryStore interface {
	Get(ctx context.Context, ref inventory.Ref) (*inventory.Product, error)
	PlanDecrement(ctx context.Context, demands []inventory.Demand) ([]types.TransactWriteItem, []inventory.Adjustment, error)
}

// AccountStore reads buyer profiles.
type AccountStore interface {
	Get(ctx context.Context, userID string) (*accounts.Account, error)
}

// IdempotencyStore guards checkout retries.
type IdempotencyStore interface {
	TableName() string
	NewRecord(key, ownerID, orderID string) idempotency.Record
	Get(ctx context.Context, key string) (*idempotency.Record, error)
}

// Deps are the engine's collaborators. Metrics may be nil.
type Deps struct {
	Orders      OrderStore
	Inventory   InventoryStore
	Accounts    AccountStore
	Idempotency IdempotencyStore
	Gateway     payments.Gateway
	Metrics     metrics.Recorder
	Logger      zerolog.Logger
}

// Config tunes the engine.
type Config struct {
	Currency          string
	ExpiryWindow      time.Duration
	MaxSettleAttempts int
	RetryBackoff      time.Duration
}

const (
	defaultCurrency          = "thb"
	defaultMaxSettleAttempts = 5
	defaultRetryBackoff      = 25 * time.Millisecond
)

// Engine is the order lifecycle engine.
type Engine struct {
	orders      OrderStore
	inventory   InventoryStore
	accounts    AccountStore
	idempotency IdempotencyStore
	gateway     payments.Gateway
	metrics     metrics.Recorder
	logger      zerolog.Logger
	cfg         Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an Engine, filling unset config with defaults.
func New(d Deps, cfg Config) *Engine {
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = orders.DefaultExpiryWindow
	}
	if cfg.MaxSettleAttempts <= 0 {
		cfg.MaxSettleAttempts = defaultMaxSettleAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	rec := d.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Engine{
		orders:      d.Orders,
		inventory:   d.Inventory,
		accounts:    d.Accounts,
		idempotency: d.Idempotency,
		gateway:     d.Gateway,
		metrics:     rec,
		logger:      d.Logger.With().Str("component", "checkout").Logger(),
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff doubles per attempt with up to 100% jitter.
func (e *Engine) backoff(attempt int) time.Duration {
	d := e.cfg.RetryBackoff << uint(attempt-1)
	return d + time.Duration(rand.Int63n(int64(d)+1))
}
