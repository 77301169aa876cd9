package orders

import "time"

// Status is the persisted order status. Only the transition methods in state.go
// produce writes of this field.
type Status string

// Order statuses
const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Failure reasons recorded with StatusFailed.
const (
	ReasonPaymentFailed = "payment_failed"
	ReasonExpired       = "expired"
)

// LineItem is one purchased product, copied from the product at checkout.
type LineItem struct {
	Name      string `dynamodbav:"name" json:"name"`
	Price     Money  `dynamodbav:"price" json:"price"`
	Quantity  int    `dynamodbav:"quantity" json:"quantity"`
	ProductID string `dynamodbav:"product_id" json:"productId"`
	Category  string `dynamodbav:"category" json:"category"`
	OwnerID   string `dynamodbav:"owner_id" json:"ownerId"` // seller
	Image     string `dynamodbav:"image,omitempty" json:"image,omitempty"`
}

// PaymentQR is the renderable PromptPay payload attached by RequestPayment.
type PaymentQR struct {
	Data      string     `dynamodbav:"data,omitempty" json:"data,omitempty"`
	ImageURL  string     `dynamodbav:"image_url,omitempty" json:"imageUrl,omitempty"`
	ImageType string     `dynamodbav:"image_type,omitempty" json:"imageType,omitempty"`
	HostedURL string     `dynamodbav:"hosted_url,omitempty" json:"hostedInstructionsUrl,omitempty"`
	ExpiresAt *time.Time `dynamodbav:"expires_at,omitempty" json:"expiresAt,omitempty"`
}

// Order is the item stored in the orders table, keyed by (owner_id, order_id).
type Order struct {
	OwnerID    string     `dynamodbav:"owner_id" json:"ownerId"` // PK
	OrderID    string     `dynamodbav:"order_id" json:"id"`      // SK
	Status     Status     `dynamodbav:"status" json:"status"`
	Items      []LineItem `dynamodbav:"items" json:"items"`
	TotalPrice Money      `dynamodbav:"total_price" json:"totalPrice"`
	CreatedAt  time.Time  `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `dynamodbav:"updated_at" json:"updatedAt"`

	PaidAt        *time.Time `dynamodbav:"paid_at,omitempty" json:"paidAt,omitempty"`
	ExpiredAt     *time.Time `dynamodbav:"expired_at,omitempty" json:"expiredAt,omitempty"`
	FailedAt      *time.Time `dynamodbav:"failed_at,omitempty" json:"failedAt,omitempty"`
	FailureReason string     `dynamodbav:"failure_reason,omitempty" json:"failureReason,omitempty"`

	PaymentIntentID     string     `dynamodbav:"payment_intent_id,omitempty" json:"paymentIntentId,omitempty"`
	PaymentClientSecret string     `dynamodbav:"payment_client_secret,omitempty" json:"paymentClientSecret,omitempty"`
	PaymentQR           *PaymentQR `dynamodbav:"payment_qr,omitempty" json:"paymentQr,omitempty"`

	// settlement receipt
	PaymentMethod  string `dynamodbav:"payment_method,omitempty" json:"paymentMethod,omitempty"`
	AmountReceived *Money `dynamodbav:"amount_received,omitempty" json:"amountReceived,omitempty"`
	Currency       string `dynamodbav:"currency,omitempty" json:"currency,omitempty"`

	// set when the gateway reports success for an order that had already failed
	LatePaymentIntentID string     `dynamodbav:"late_payment_intent_id,omitempty" json:"latePaymentIntentId,omitempty"`
	LatePaymentAt       *time.Time `dynamodbav:"late_payment_at,omitempty" json:"latePaymentAt,omitempty"`
}

// PaymentDetails is what RequestPayment persists onto a pending order.
type PaymentDetails struct {
	IntentID     string
	ClientSecret string
	QR           *PaymentQR
}

// Receipt is the gateway's account of a successful payment.
type Receipt struct {
	PaymentIntentID string
	PaymentMethod   string
	AmountMinor     int64
	Currency        string
}

// New builds a pending order. The total is computed from the items and is
// never recomputed afterwards.
func New(ownerID string, items []LineItem, now time.Time) Order {
	return Order{
		OwnerID:    ownerID,
		Status:     StatusPending,
		Items:      items,
		TotalPrice: TotalOf(items),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TotalOf returns Σ(price × quantity).
func TotalOf(items []LineItem) Money {
	total := Money{}
	for _, it := range items {
		total = total.Add(it.Price.Mul(it.Quantity))
	}
	return total
}
