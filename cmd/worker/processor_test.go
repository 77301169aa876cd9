package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/checkout"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/dynamotest"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
)

type countingReconciler struct {
	calls int
	err   error
}

func (r *countingReconciler) Reconcile(ctx context.Context, ev payments.Event) (checkout.Outcome, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return checkout.OutcomePaid, nil
}

func newProcessor(t *testing.T, r Reconciler) (*Processor, *idempotency.Store) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable("idempotency", "idempotency_key")
	ledger := idempotency.NewStore(fake, "idempotency", 48*time.Hour)
	return NewProcessor(r, ledger, zerolog.Nop()), ledger
}

func message(t *testing.T, id string) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(payments.Event{
		ID:              id,
		Type:            "payment_intent.succeeded",
		Outcome:         payments.OutcomeSucceeded,
		PaymentIntentID: "pi_1",
		Metadata:        payments.Metadata{OwnerID: "user-1", OrderID: "order-1"},
		AmountReceived:  25000,
		Currency:        "thb",
	})
	require.NoError(t, err)
	return events.SQSMessage{MessageId: "m-" + id, Body: string(body)}
}

func TestWorkerProcess_Success(t *testing.T) {
	r := &countingReconciler{}
	p, ledger := newProcessor(t, r)
	ctx := context.Background()

	resp, err := p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{message(t, "evt_1")}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 1, r.calls)

	rec, err := ledger.Get(ctx, eventKey("evt_1"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, idempotency.StatusDone, rec.Status)
	assert.Equal(t, "order-1", rec.OrderID)
}

func TestWorkerProcess_DuplicateDeliverySkipped(t *testing.T) {
	r := &countingReconciler{}
	p, _ := newProcessor(t, r)
	ctx := context.Background()

	batch := events.SQSEvent{Records: []events.SQSMessage{message(t, "evt_1"), message(t, "evt_1")}}
	resp, err := p.Handle(ctx, batch)
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 1, r.calls)
}

func TestWorkerProcess_FailureIsRetried(t *testing.T) {
	r := &countingReconciler{err: errors.New("conflict retries exhausted")}
	p, ledger := newProcessor(t, r)
	ctx := context.Background()

	resp, err := p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{message(t, "evt_2")}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m-evt_2", resp.BatchItemFailures[0].ItemIdentifier)

	rec, err := ledger.Get(ctx, eventKey("evt_2"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, idempotency.StatusFailed, rec.Status)

	// redelivery after the cause clears
	r.err = nil
	resp, err = p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{message(t, "evt_2")}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 2, r.calls)
}

func TestWorkerProcess_BadBody(t *testing.T) {
	r := &countingReconciler{}
	p, _ := newProcessor(t, r)

	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-bad", Body: "not json"},
		{MessageId: "m-noid", Body: `{"type":"payment_intent.succeeded"}`},
	}})
	require.NoError(t, err)
	assert.Len(t, resp.BatchItemFailures, 2)
	assert.Zero(t, r.calls)
}
