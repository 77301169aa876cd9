package validation

// LineSelection is one cart line in POST /orders.
type LineSelection struct {
	OwnerID   string `json:"ownerId" validate:"required"`   // seller who lists the product
	Category  string `json:"category" validate:"required"`  // product category
	ProductID string `json:"productId" validate:"required"` // product id within the category
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CreateOrderRequest is the payload for POST /orders.
type CreateOrderRequest struct {
	UserID string          `json:"userId" validate:"required"`
	Items  []LineSelection `json:"items" validate:"required,min=1,dive"`
}

// CreatePaymentIntentRequest is the payload for POST /create-payment-intent.
type CreatePaymentIntentRequest struct {
	UserID  string `json:"userId" validate:"required"`
	OrderID string `json:"orderId" validate:"required"`
}
