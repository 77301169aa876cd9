// Package handlers exposes the checkout engine over HTTP.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/checkout"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/logging"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/metrics"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/orders"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/validation"
)

// Engine is the checkout surface the handlers call.
type Engine interface {
	CreateOrder(ctx context.Context, ownerID string, selections []checkout.Selection, idempotencyKey string) (*checkout.CreateResult, error)
	GetOrder(ctx context.Context, ownerID, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, ownerID string) ([]orders.Order, error)
	RequestPayment(ctx context.Context, ownerID, orderID string) (*checkout.PaymentResult, error)
	ConfirmManually(ctx context.Context, ownerID, orderID string) (*orders.Order, error)
	Reconcile(ctx context.Context, ev payments.Event) (checkout.Outcome, error)
}

// Publisher queues verified webhook events for the worker.
type Publisher interface {
	Publish(ctx context.Context, messageBody string, attributes map[string]string) error
}

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	Engine Engine
	// Verifier is nil when no webhook secret is configured; /webhook then
	// answers 500 to every delivery.
	Verifier *payments.WebhookVerifier
	// Publisher, when set, receives verified events instead of reconciling
	// them inline.
	Publisher Publisher
	Metrics   metrics.Recorder
	Logger    zerolog.Logger
}

type api struct {
	engine    Engine
	verifier  *payments.WebhookVerifier
	publisher Publisher
	metrics   metrics.Recorder
	logger    zerolog.Logger
	validate  *validatorv10.Validate
}

// NewRouter builds the gin engine with health, metrics and every API route.
// prom may be nil, in which case /metrics is not served.
func NewRouter(cfg HandlerConfig, prom *metrics.Prometheus) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(cfg.Logger))
	if prom != nil {
		r.Use(prom.Middleware())
		r.GET("/metrics", gin.WrapH(prom.Handler()))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterRoutes(r, cfg)
	return r
}

// RegisterRoutes registers the order, payment and webhook routes.
func RegisterRoutes(r gin.IRoutes, cfg HandlerConfig) {
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	a := &api{
		engine:    cfg.Engine,
		verifier:  cfg.Verifier,
		publisher: cfg.Publisher,
		metrics:   rec,
		logger:    cfg.Logger.With().Str("component", "http").Logger(),
		validate:  validation.New(),
	}

	r.POST("/orders", a.createOrder)
	r.GET("/users/:userId/orders", a.listOrders)
	r.GET("/users/:userId/orders/:orderId", a.getOrder)
	r.POST("/users/:userId/orders/:orderId/confirm", a.confirmOrder)

	r.POST("/create-payment-intent", a.createPaymentIntent)
	r.POST("/webhook", a.webhook)
}
