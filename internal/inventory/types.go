package inventory

import (
	"fmt"
	"math"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/orders"
)

// Cart limits.
const (
	// MaxDistinctProducts bounds an order so its settlement fits one DynamoDB
	// transaction (100 items: the products plus the order itself).
	MaxDistinctProducts = 99
	// MaxQuantity bounds the units of one product in an order, summed over
	// repeated lines.
	MaxQuantity = 1_000_000
)

// Ref addresses one product document: a seller's product inside a category.
type Ref struct {
	OwnerID   string `json:"ownerId"`
	Category  string `json:"category"`
	ProductID string `json:"productId"`
}

// Valid reports whether every part of the reference is present.
func (r Ref) Valid() bool {
	return r.OwnerID != "" && r.Category != "" && r.ProductID != ""
}

// SortKey is the products table sort key: category#productId.
func (r Ref) SortKey() string { return r.Category + "#" + r.ProductID }

func (r Ref) String() string { return fmt.Sprintf("%s/%s/%s", r.OwnerID, r.Category, r.ProductID) }

// RefOf returns the product reference recorded on an order line.
func RefOf(it orders.LineItem) Ref {
	return Ref{OwnerID: it.OwnerID, Category: it.Category, ProductID: it.ProductID}
}

// Product is the item stored in the products table, keyed by (owner_id, product_key).
type Product struct {
	OwnerID    string       `dynamodbav:"owner_id" json:"ownerId"` // PK, seller
	ProductKey string       `dynamodbav:"product_key" json:"-"`    // SK
	Category   string       `dynamodbav:"category" json:"category"`
	ProductID  string       `dynamodbav:"product_id" json:"productId"`
	Name       string       `dynamodbav:"name" json:"name"`
	Price      orders.Money `dynamodbav:"price" json:"price"`
	Quantity   int          `dynamodbav:"quantity" json:"quantity"`
	Image      string       `dynamodbav:"image,omitempty" json:"image,omitempty"`
}

// Ref returns the product's reference.
func (p Product) Ref() Ref {
	return Ref{OwnerID: p.OwnerID, Category: p.Category, ProductID: p.ProductID}
}

// Demand is the total quantity an order takes from one product.
type Demand struct {
	Ref      Ref
	Quantity int
}

// Demands merges an order's lines per product, preserving first-seen order.
// Lines with an incomplete reference or a non-positive quantity are dropped, the
// same way settlement has always skipped them.
func Demands(items []orders.LineItem) []Demand {
	idx := map[Ref]int{}
	var out []Demand
	for _, it := range items {
		ref := RefOf(it)
		if !ref.Valid() || it.Quantity <= 0 {
			continue
		}
		if i, ok := idx[ref]; ok {
			out[i].Quantity = addSaturating(out[i].Quantity, it.Quantity)
			continue
		}
		idx[ref] = len(out)
		out = append(out, Demand{Ref: ref, Quantity: it.Quantity})
	}
	return out
}

// addSaturating adds two positive quantities, stopping at math.MaxInt. A
// saturated demand still exceeds any stock, so the decrement clamps at zero.
func addSaturating(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// Adjustment describes the decrement planned for one product.
type Adjustment struct {
	Ref     Ref
	Before  int
	After   int
	Missing bool // product was deleted; nothing to decrement
}
