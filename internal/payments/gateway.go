// Package payments talks to the payment gateway: it opens PromptPay payment
// intents, reads them back, and turns signed webhook deliveries into events.
package payments

import (
	"context"
	"time"
)

// Metadata is attached to every intent so a webhook can be routed back to its order.
type Metadata struct {
	OwnerID string `json:"userId"`
	OrderID string `json:"orderId"`
}

// Gateway metadata keys.
const (
	MetaOwnerID = "userId"
	MetaOrderID = "orderId"
)

// Map renders the metadata in the gateway's key scheme.
func (m Metadata) Map() map[string]string {
	return map[string]string{MetaOwnerID: m.OwnerID, MetaOrderID: m.OrderID}
}

// MetadataFrom reads the routing keys back from gateway metadata.
func MetadataFrom(m map[string]string) Metadata {
	return Metadata{OwnerID: m[MetaOwnerID], OrderID: m[MetaOrderID]}
}

// Complete reports whether both routing keys are present.
func (m Metadata) Complete() bool { return m.OwnerID != "" && m.OrderID != "" }

// IntentRequest asks the gateway for a confirmed PromptPay intent.
type IntentRequest struct {
	AmountMinor    int64
	Currency       string
	Email          string
	Metadata       Metadata
	IdempotencyKey string
}

// QRCode is the PromptPay payload returned with a confirmed intent.
type QRCode struct {
	Data      string
	ImageURL  string
	ImageType string
	HostedURL string
	ExpiresAt *time.Time
}

// Intent is the gateway's view of a payment attempt.
type Intent struct {
	ID             string
	ClientSecret   string
	Status         string
	AmountMinor    int64
	AmountReceived int64
	Currency       string
	PaymentMethod  string
	Metadata       Metadata
	QR             *QRCode
	FailureMessage string
}

// Intent statuses the reconciler cares about.
const (
	IntentSucceeded      = "succeeded"
	IntentRequiresAction = "requires_action"
)

// Succeeded reports whether the gateway settled the intent.
func (i Intent) Succeeded() bool { return i.Status == IntentSucceeded }

// Gateway is the subset of the payment provider the order flow depends on.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}
