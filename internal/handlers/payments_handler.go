package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/logging"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/validation"
)

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// Webhook results recorded in metrics.
const (
	webhookRejected = "rejected"
	webhookIgnored  = "ignored"
	webhookQueued   = "queued"
	webhookError    = "error"
)

func (a *api) createPaymentIntent(c *gin.Context) {
	var req validation.CreatePaymentIntentRequest
	if err := validation.BindAndValidateMessage(c, &req, a.validate, "userId and orderId are required"); err != nil {
		return
	}

	res, err := a.engine.RequestPayment(c.Request.Context(), req.UserID, req.OrderID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// webhook verifies a gateway delivery and either reconciles it or queues it.
// Failures that deserve a redelivery answer 5xx; forged or unreadable bodies
// answer 400 and change nothing.
func (a *api) webhook(c *gin.Context) {
	log := a.logger.With().Str("request_id", logging.RequestID(c)).Logger()
	if a.verifier == nil {
		log.Error().Msg("webhook secret not configured")
		c.String(http.StatusInternalServerError, "Webhook secret not configured")
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, "Webhook Error: unreadable body")
		return
	}

	ev, err := a.verifier.Verify(payload, c.GetHeader(SignatureHeader))
	if err != nil {
		var sigErr *payments.SignatureError
		var malformed *payments.MalformedEventError
		if errors.As(err, &sigErr) || errors.As(err, &malformed) {
			log.Warn().Err(err).Msg("webhook rejected")
			a.metrics.WebhookReceived("unknown", webhookRejected)
			c.String(http.StatusBadRequest, "Webhook Error: %s", err.Error())
			return
		}
		log.Error().Err(err).Msg("webhook verification failed")
		c.String(http.StatusInternalServerError, "Webhook handler failed")
		return
	}
	log = log.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Logger()

	if !ev.Relevant() {
		a.metrics.WebhookReceived(ev.Type, webhookIgnored)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if a.publisher != nil {
		if err := a.enqueue(c, ev); err != nil {
			log.Error().Err(err).Msg("webhook enqueue failed")
			a.metrics.WebhookReceived(ev.Type, webhookError)
			c.String(http.StatusInternalServerError, "Webhook handler failed")
			return
		}
		a.metrics.WebhookReceived(ev.Type, webhookQueued)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	outcome, err := a.engine.Reconcile(c.Request.Context(), ev)
	if err != nil {
		log.Error().Err(err).Msg("webhook handling error")
		a.metrics.WebhookReceived(ev.Type, webhookError)
		c.String(http.StatusInternalServerError, "Webhook handler failed")
		return
	}
	a.metrics.WebhookReceived(ev.Type, string(outcome))
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (a *api) enqueue(c *gin.Context, ev payments.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return a.publisher.Publish(c.Request.Context(), string(body), map[string]string{
		"event_id":       ev.ID,
		"event_type":     ev.Type,
		"order_id":       ev.Metadata.OrderID,
		"correlation_id": logging.RequestID(c),
	})
}
