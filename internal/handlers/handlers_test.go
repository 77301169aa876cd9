package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/checkout"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/inventory"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/metrics"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/orders"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
)

const testSecret = "whsec_test"

type stubEngine struct {
	createFn    func(ownerID string, sel []checkout.Selection, key string) (*checkout.CreateResult, error)
	getFn       func(ownerID, orderID string) (*orders.Order, error)
	listFn      func(ownerID string) ([]orders.Order, error)
	paymentFn   func(ownerID, orderID string) (*checkout.PaymentResult, error)
	confirmFn   func(ownerID, orderID string) (*orders.Order, error)
	reconcileFn func(ev payments.Event) (checkout.Outcome, error)

	reconciled []payments.Event
}

func (s *stubEngine) CreateOrder(_ context.Context, ownerID string, sel []checkout.Selection, key string) (*checkout.CreateResult, error) {
	return s.createFn(ownerID, sel, key)
}

func (s *stubEngine) GetOrder(_ context.Context, ownerID, orderID string) (*orders.Order, error) {
	return s.getFn(ownerID, orderID)
}

func (s *stubEngine) ListOrders(_ context.Context, ownerID string) ([]orders.Order, error) {
	return s.listFn(ownerID)
}

func (s *stubEngine) RequestPayment(_ context.Context, ownerID, orderID string) (*checkout.PaymentResult, error) {
	return s.paymentFn(ownerID, orderID)
}

func (s *stubEngine) ConfirmManually(_ context.Context, ownerID, orderID string) (*orders.Order, error) {
	return s.confirmFn(ownerID, orderID)
}

func (s *stubEngine) Reconcile(_ context.Context, ev payments.Event) (checkout.Outcome, error) {
	s.reconciled = append(s.reconciled, ev)
	if s.reconcileFn != nil {
		return s.reconcileFn(ev)
	}
	return checkout.OutcomePaid, nil
}

type recordingPublisher struct {
	bodies []string
	attrs  []map[string]string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, body string, attrs map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	p.attrs = append(p.attrs, attrs)
	return nil
}

func newRouter(engine Engine, opts ...func(*HandlerConfig)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := HandlerConfig{
		Engine:   engine,
		Verifier: payments.NewWebhookVerifier(testSecret),
		Logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return NewRouter(cfg, nil)
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func pendingOrder() *orders.Order {
	o := orders.New("user-1", []orders.LineItem{
		{Name: "Mango", Price: orders.MustMoney("50"), Quantity: 2, ProductID: "mango", Category: "fruit", OwnerID: "seller-1"},
		{Name: "Rice", Price: orders.MustMoney("150"), Quantity: 1, ProductID: "rice", Category: "grain", OwnerID: "seller-1"},
	}, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	o.OrderID = "order-1"
	return &o
}

func TestHealth(t *testing.T) {
	w := do(newRouter(&stubEngine{}), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	prom := metrics.NewPrometheus("orderflow", prometheus.NewRegistry())
	r := NewRouter(HandlerConfig{Engine: &stubEngine{}, Metrics: prom, Logger: zerolog.Nop()}, prom)

	do(r, http.MethodGet, "/health", "", nil)
	w := do(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orderflow_api_http_requests_total")
}

func TestCreateOrder(t *testing.T) {
	var gotOwner, gotKey string
	var gotSel []checkout.Selection
	engine := &stubEngine{createFn: func(ownerID string, sel []checkout.Selection, key string) (*checkout.CreateResult, error) {
		gotOwner, gotSel, gotKey = ownerID, sel, key
		return &checkout.CreateResult{Order: pendingOrder()}, nil
	}}
	r := newRouter(engine)

	body := `{"userId":"user-1","items":[{"ownerId":"seller-1","category":"fruit","productId":"mango","quantity":2}]}`
	w := do(r, http.MethodPost, "/orders", body, map[string]string{IdempotencyKeyHeader: "cart-7"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/users/user-1/orders/order-1", w.Header().Get("Location"))
	assert.Equal(t, "user-1", gotOwner)
	assert.Equal(t, "cart-7", gotKey)
	require.Len(t, gotSel, 1)
	assert.Equal(t, inventory.Ref{OwnerID: "seller-1", Category: "fruit", ProductID: "mango"}, gotSel[0].Product)
	assert.Equal(t, 2, gotSel[0].Quantity)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "pending", got["status"])
	assert.Equal(t, float64(250), got["totalPrice"])
}

func TestCreateOrder_ReplayIs200(t *testing.T) {
	engine := &stubEngine{createFn: func(string, []checkout.Selection, string) (*checkout.CreateResult, error) {
		return &checkout.CreateResult{Order: pendingOrder(), Replayed: true}, nil
	}}
	body := `{"userId":"user-1","items":[{"ownerId":"seller-1","category":"fruit","productId":"mango","quantity":2}]}`
	w := do(newRouter(engine), http.MethodPost, "/orders", body, map[string]string{IdempotencyKeyHeader: "cart-7"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateOrder_Rejections(t *testing.T) {
	stock := &checkout.InsufficientStockError{Product: inventory.Ref{OwnerID: "seller-1", Category: "fruit", ProductID: "mango"}, Requested: 5, Available: 1}
	engine := &stubEngine{createFn: func(string, []checkout.Selection, string) (*checkout.CreateResult, error) {
		return nil, stock
	}}
	r := newRouter(engine)

	w := do(r, http.MethodPost, "/orders", `{"userId":"user-1","items":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := `{"userId":"user-1","items":[{"ownerId":"seller-1","category":"fruit","productId":"mango","quantity":5}]}`
	w = do(r, http.MethodPost, "/orders", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"available":1`)
}

func TestGetAndListOrders(t *testing.T) {
	engine := &stubEngine{
		getFn: func(ownerID, orderID string) (*orders.Order, error) {
			if orderID != "order-1" {
				return nil, checkout.ErrOrderNotFound
			}
			return pendingOrder(), nil
		},
		listFn: func(ownerID string) ([]orders.Order, error) {
			return []orders.Order{*pendingOrder()}, nil
		},
	}
	r := newRouter(engine)

	w := do(r, http.MethodGet, "/users/user-1/orders/order-1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"order-1"`)

	w = do(r, http.MethodGet, "/users/user-1/orders/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Order not found"}`, w.Body.String())

	w = do(r, http.MethodGet, "/users/user-1/orders", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Orders []orders.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Orders, 1)
	assert.True(t, got.Orders[0].TotalPrice.Equal(orders.MustMoney("250")))
}

func TestCreatePaymentIntent(t *testing.T) {
	engine := &stubEngine{paymentFn: func(ownerID, orderID string) (*checkout.PaymentResult, error) {
		return &checkout.PaymentResult{
			PaymentIntentID: "pi_1",
			ClientSecret:    "pi_1_secret",
			Amount:          25000,
			Currency:        "thb",
			QRCode:          &orders.PaymentQR{Data: "000201", ImageURL: "https://qr/img.png", ImageType: "url"},
		}, nil
	}}
	w := do(newRouter(engine), http.MethodPost, "/create-payment-intent", `{"userId":"user-1","orderId":"order-1"}`, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "pi_1", got["paymentIntentId"])
	assert.Equal(t, float64(25000), got["amount"])
	assert.Equal(t, "thb", got["currency"])
	assert.Equal(t, "000201", got["qrCode"].(map[string]interface{})["data"])
}

func TestCreatePaymentIntent_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"no user", checkout.ErrAccountNotFound, http.StatusNotFound},
		{"no email", checkout.ErrAccountEmailMissing, http.StatusBadRequest},
		{"no order", checkout.ErrOrderNotFound, http.StatusNotFound},
		{"not pending", checkout.ErrOrderNotPending, http.StatusConflict},
		{"zero total", &checkout.PaymentAmountInvalidError{AmountMinor: 0}, http.StatusBadRequest},
		{"total too large", &checkout.PaymentAmountInvalidError{Overflow: true}, http.StatusBadRequest},
		{"gateway", &payments.GatewayError{Op: "create intent", Message: "boom"}, http.StatusInternalServerError},
		{"other", errors.New("dynamo down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &stubEngine{paymentFn: func(string, string) (*checkout.PaymentResult, error) { return nil, tc.err }}
			w := do(newRouter(engine), http.MethodPost, "/create-payment-intent", `{"userId":"user-1","orderId":"order-1"}`, nil)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestCreatePaymentIntent_MissingFields(t *testing.T) {
	for _, body := range []string{`{"userId":"user-1"}`, `{"userId":`, `{}`} {
		w := do(newRouter(&stubEngine{}), http.MethodPost, "/create-payment-intent", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error":"userId and orderId are required"}`, w.Body.String(), body)
	}
}

func TestConfirmOrder(t *testing.T) {
	engine := &stubEngine{confirmFn: func(ownerID, orderID string) (*orders.Order, error) {
		return nil, &checkout.PaymentNotConfirmedError{IntentID: "pi_1", Status: "requires_action"}
	}}
	w := do(newRouter(engine), http.MethodPost, "/users/user-1/orders/order-1/confirm", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "requires_action")
}

const succeededEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "payment_intent.succeeded",
  "created": 1767225600,
  "data": {"object": {
    "id": "pi_1", "object": "payment_intent", "amount": 25000, "amount_received": 25000,
    "currency": "thb", "status": "succeeded",
    "metadata": {"userId": "user-1", "orderId": "order-1"},
    "payment_method_types": ["promptpay"]
  }}
}`

func signed(payload, secret string) map[string]string {
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return map[string]string{SignatureHeader: sp.Header}
}

func TestWebhook_Inline(t *testing.T) {
	engine := &stubEngine{}
	w := do(newRouter(engine), http.MethodPost, "/webhook", succeededEvent, signed(succeededEvent, testSecret))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	require.Len(t, engine.reconciled, 1)
	assert.Equal(t, "pi_1", engine.reconciled[0].PaymentIntentID)
	assert.Equal(t, "order-1", engine.reconciled[0].Metadata.OrderID)
}

func TestWebhook_BadSignatureChangesNothing(t *testing.T) {
	engine := &stubEngine{}
	r := newRouter(engine)

	w := do(r, http.MethodPost, "/webhook", succeededEvent, signed(succeededEvent, "whsec_forged"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/webhook", succeededEvent, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, engine.reconciled)
}

func TestWebhook_NoSecretConfigured(t *testing.T) {
	engine := &stubEngine{}
	r := newRouter(engine, func(c *HandlerConfig) { c.Verifier = nil })
	w := do(r, http.MethodPost, "/webhook", succeededEvent, signed(succeededEvent, testSecret))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, engine.reconciled)
}

func TestWebhook_ReconcileErrorAsksForRedelivery(t *testing.T) {
	engine := &stubEngine{reconcileFn: func(payments.Event) (checkout.Outcome, error) {
		return "", errors.New("conflict retries exhausted")
	}}
	w := do(newRouter(engine), http.MethodPost, "/webhook", succeededEvent, signed(succeededEvent, testSecret))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhook_IgnoredType(t *testing.T) {
	payload := `{"id":"evt_3","object":"event","type":"charge.refunded","created":1767225600,
		"data":{"object":{"id":"ch_1","object":"charge"}}}`
	engine := &stubEngine{}
	w := do(newRouter(engine), http.MethodPost, "/webhook", payload, signed(payload, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, engine.reconciled)
}

func TestWebhook_QueueMode(t *testing.T) {
	engine := &stubEngine{}
	pub := &recordingPublisher{}
	r := newRouter(engine, func(c *HandlerConfig) { c.Publisher = pub })

	w := do(r, http.MethodPost, "/webhook", succeededEvent, signed(succeededEvent, testSecret))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, engine.reconciled)
	require.Len(t, pub.bodies, 1)

	var ev payments.Event
	require.NoError(t, json.NewDecoder(bytes.NewBufferString(pub.bodies[0])).Decode(&ev))
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, payments.OutcomeSucceeded, ev.Outcome)
	assert.Equal(t, "order-1", pub.attrs[0]["order_id"])

	pub.err = errors.New("sqs unavailable")
	w = do(r, http.MethodPost, "/webhook", succeededEvent, signed(succeededEvent, testSecret))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
