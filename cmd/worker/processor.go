package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/checkout"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
)

// Reconciler applies a verified payment event.
type Reconciler interface {
	Reconcile(ctx context.Context, ev payments.Event) (checkout.Outcome, error)
}

// EventLedger records which webhook events have been applied.
type EventLedger interface {
	Claim(ctx context.Context, key, ownerID string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, orderID string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Processor reconciles queued webhook events.
type Processor struct {
	reconciler Reconciler
	ledger     EventLedger
	logger     zerolog.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(r Reconciler, ledger EventLedger, logger zerolog.Logger) *Processor {
	return &Processor{
		reconciler: r,
		ledger:     ledger,
		logger:     logger.With().Str("component", "worker").Logger(),
	}
}

func eventKey(id string) string { return "event#" + id }

// Handle processes an SQS batch and reports the failed records so only those
// are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error().Err(err).Str("message_id", rec.MessageId).Msg("worker error")
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev payments.Event
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if ev.ID == "" {
		return fmt.Errorf("message %s carries no event id", rec.MessageId)
	}
	log := p.logger.With().
		Str("event_id", ev.ID).
		Str("order_id", ev.Metadata.OrderID).
		Logger()

	key := eventKey(ev.ID)
	claimed, err := p.ledger.Claim(ctx, key, ev.Metadata.OwnerID)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !claimed {
		prior, err := p.ledger.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("load event record: %w", err)
		}
		if prior != nil && prior.Status == idempotency.StatusDone {
			log.Info().Msg("event already applied")
			return nil
		}
		// a failed or abandoned attempt; reconciliation is safe to repeat
	}

	outcome, err := p.reconciler.Reconcile(ctx, ev)
	if err != nil {
		if merr := p.ledger.MarkFailed(ctx, key, err.Error()); merr != nil {
			log.Warn().Err(merr).Msg("mark event failed")
		}
		return fmt.Errorf("reconcile %s: %w", ev.ID, err)
	}

	if err := p.ledger.MarkDone(ctx, key, ev.Metadata.OrderID, http.StatusOK); err != nil {
		// the order is already settled; a redelivery resolves as a duplicate
		log.Warn().Err(err).Msg("mark event done")
	}
	log.Info().Str("outcome", string(outcome)).Msg("event processed")
	return nil
}
