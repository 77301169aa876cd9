// Package app wires the stores, gateway and checkout engine shared by the
// binaries.
package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/accounts"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/aws"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/checkout"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/config"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/inventory"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/metrics"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/orders"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
)

// App holds the wired components.
type App struct {
	Config      config.Config
	Logger      zerolog.Logger
	Clients     *aws.AWSClients
	Orders      *orders.Store
	Inventory   *inventory.Store
	Accounts    *accounts.Store
	Idempotency *idempotency.Store
	Gateway     payments.Gateway
	Engine      *checkout.Engine
}

// New connects to AWS and builds the engine. rec may be nil.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, rec metrics.Recorder) (*App, error) {
	clients, err := aws.NewAWSClients(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
	if err != nil {
		return nil, err
	}
	gateway := payments.NewStripeGateway(cfg.StripeSecretKey, nil, logger)
	return Wire(cfg, logger, clients, gateway, rec), nil
}

// Wire builds the stores and engine over existing clients.
func Wire(cfg config.Config, logger zerolog.Logger, clients *aws.AWSClients, gateway payments.Gateway, rec metrics.Recorder) *App {
	a := &App{
		Config:      cfg,
		Logger:      logger,
		Clients:     clients,
		Orders:      orders.NewStore(clients.DynamoDB, cfg.OrdersTable),
		Inventory:   inventory.NewStore(clients.DynamoDB, cfg.ProductsTable),
		Accounts:    accounts.NewStore(clients.DynamoDB, cfg.UsersTable),
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		Gateway:     gateway,
	}
	a.Engine = checkout.New(checkout.Deps{
		Orders:      a.Orders,
		Inventory:   a.Inventory,
		Accounts:    a.Accounts,
		Idempotency: a.Idempotency,
		Gateway:     gateway,
		Metrics:     rec,
		Logger:      logger,
	}, checkout.Config{
		Currency:          cfg.PaymentCurrency,
		ExpiryWindow:      cfg.OrderExpiryWindow,
		MaxSettleAttempts: cfg.SettleMaxAttempts,
	})
	return a
}
