package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/app"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/aws"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/config"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/dynamotest"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/inventory"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/orders"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
)

type offlineGateway struct{}

func (offlineGateway) CreateIntent(context.Context, payments.IntentRequest) (*payments.Intent, error) {
	return nil, &payments.GatewayError{Op: "create intent", Message: "offline"}
}

func (offlineGateway) RetrieveIntent(context.Context, string) (*payments.Intent, error) {
	return nil, &payments.GatewayError{Op: "retrieve intent", Message: "offline"}
}

func testApp(t *testing.T) *app.App {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable("orders", "owner_id", "order_id")
	fake.CreateTable("products", "owner_id", "product_key")
	fake.CreateTable("users", "user_id")
	fake.CreateTable("idempotency", "idempotency_key")
	cfg := config.Config{
		OrdersTable:      "orders",
		ProductsTable:    "products",
		UsersTable:       "users",
		IdempotencyTable: "idempotency",
		IdempotencyTTL:   time.Hour,
	}
	return app.Wire(cfg, zerolog.Nop(), &aws.AWSClients{DynamoDB: fake}, offlineGateway{}, nil)
}

func run(t *testing.T, a *app.App, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func(context.Context) (*app.App, error) { return a, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSweep(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	items := []orders.LineItem{{Name: "Mango", Price: orders.MustMoney("50"), Quantity: 1, ProductID: "mango", Category: "fruit", OwnerID: "seller-1"}}

	stale := orders.New("user-1", items, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, a.Orders.Create(ctx, &stale))
	fresh := orders.New("user-1", items, time.Now().UTC())
	require.NoError(t, a.Orders.Create(ctx, &fresh))

	out, err := run(t, a, "sweep", "--owner", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, "expired 1 order(s) for user-1")

	got, err := a.Orders.Get(ctx, "user-1", stale.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusFailed, got.Status)
	assert.Equal(t, orders.ReasonExpired, got.FailureReason)

	got, err = a.Orders.Get(ctx, "user-1", fresh.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
}

func TestSweep_RequiresOwner(t *testing.T) {
	_, err := run(t, testApp(t), "sweep")
	assert.Error(t, err)
}

func TestGetAndList(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	o := orders.New("user-1", []orders.LineItem{{Name: "Rice", Price: orders.MustMoney("150"), Quantity: 1, ProductID: "rice", Category: "grain", OwnerID: "seller-1"}}, time.Now().UTC())
	require.NoError(t, a.Orders.Create(ctx, &o))

	out, err := run(t, a, "get", "user-1", o.OrderID)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "pending"`)
	assert.Contains(t, out, `"totalPrice": 150`)

	out, err = run(t, a, "list", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, o.OrderID+"\tpending\t150")

	_, err = run(t, a, "get", "user-1", "missing")
	assert.Error(t, err)
}

func TestProductAndAccount(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	_, err := run(t, a, "product", "add", "--owner", "seller-1", "--category", "fruit", "--id", "mango",
		"--name", "Mango", "--price", "49.50", "--quantity", "12")
	require.NoError(t, err)

	p, err := a.Inventory.Get(ctx, inventory.Ref{OwnerID: "seller-1", Category: "fruit", ProductID: "mango"})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 12, p.Quantity)
	assert.True(t, p.Price.Equal(orders.MustMoney("49.5")))

	_, err = run(t, a, "product", "add", "--owner", "seller-1", "--category", "fruit", "--id", "mango",
		"--name", "Mango", "--price", "49.50")
	assert.ErrorIs(t, err, inventory.ErrProductExists)

	out, err := run(t, a, "product", "get", "seller-1", "fruit", "mango")
	require.NoError(t, err)
	assert.Contains(t, out, "Mango")

	_, err = run(t, a, "account", "put", "--user", "user-1", "--email", "buyer@example.com")
	require.NoError(t, err)
	acct, err := a.Accounts.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, "buyer@example.com", acct.Email)
}

func TestConfirm_NoIntent(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	o := orders.New("user-1", []orders.LineItem{{Name: "Rice", Price: orders.MustMoney("150"), Quantity: 1, ProductID: "rice", Category: "grain", OwnerID: "seller-1"}}, time.Now().UTC())
	require.NoError(t, a.Orders.Create(ctx, &o))

	_, err := run(t, a, "confirm", "user-1", o.OrderID)
	assert.Error(t, err)
}
