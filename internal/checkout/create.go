package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/inventory"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/orders"
)

// Selection is one cart line: a product and how many of it.
type Selection struct {
	Product  inventory.Ref
	Quantity int
}

// CreateResult is a created order, or the order an earlier request with the same
// idempotency key created.
type CreateResult struct {
	Order    *orders.Order
	Replayed bool
}

// CreateOrder validates the selection against current stock, locks in product
// names and prices, and writes a pending order. Stock is checked, not reserved.
//
// With a non-empty idempotencyKey the order and its idempotency record are
// written in one transaction; a repeated key returns the original order.
func (e *Engine) CreateOrder(ctx context.Context, ownerID string, selections []Selection, idempotencyKey string) (*CreateResult, error) {
	if ownerID == "" {
		return nil, &InvalidOrderError{Reason: "missing owner"}
	}
	demands, err := validateSelections(selections)
	if err != nil {
		return nil, err
	}

	var scopedKey string
	if idempotencyKey != "" {
		scopedKey = idempotency.ScopedKey(ownerID, idempotencyKey)
		if prior, err := e.replay(ctx, ownerID, scopedKey); err != nil || prior != nil {
			return prior, err
		}
	}

	products := make(map[inventory.Ref]*inventory.Product, len(demands))
	for _, d := range demands {
		p, err := e.inventory.Get(ctx, d.Ref)
		if err != nil {
			return nil, fmt.Errorf("load product: %w", err)
		}
		if p == nil {
			return nil, &InvalidOrderError{Reason: fmt.Sprintf("product %s not found", d.Ref)}
		}
		if p.Quantity < d.Quantity {
			return nil, &InsufficientStockError{Product: d.Ref, Requested: d.Quantity, Available: p.Quantity}
		}
		products[d.Ref] = p
	}

	items := make([]orders.LineItem, 0, len(selections))
	for _, s := range selections {
		p := products[s.Product]
		items = append(items, orders.LineItem{
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  s.Quantity,
			ProductID: s.Product.ProductID,
			Category:  s.Product.Category,
			OwnerID:   s.Product.OwnerID,
			Image:     p.Image,
		})
	}
	o := orders.New(ownerID, items, e.now())

	if scopedKey == "" {
		if err := e.orders.Create(ctx, &o); err != nil {
			return nil, err
		}
	} else {
		o.OrderID = uuid.NewString()
		rec := e.idempotency.NewRecord(scopedKey, ownerID, o.OrderID)
		rec.Status = idempotency.StatusDone
		rec.ResponseStatus = http.StatusCreated
		err := e.orders.CreateWithIdempotencyTransaction(ctx, e.idempotency.TableName(), rec, &o)
		if errors.Is(err, orders.ErrIdempotencyKeyExists) {
			// a concurrent request with the same key won
			prior, rerr := e.replay(ctx, ownerID, scopedKey)
			if rerr != nil {
				return nil, rerr
			}
			if prior == nil {
				return nil, err
			}
			return prior, nil
		}
		if err != nil {
			return nil, err
		}
	}

	e.metrics.OrderCreated()
	e.logger.Info().
		Str("owner_id", ownerID).
		Str("order_id", o.OrderID).
		Str("total", o.TotalPrice.String()).
		Int("lines", len(o.Items)).
		Msg("order created")
	return &CreateResult{Order: &o}, nil
}

func (e *Engine) replay(ctx context.Context, ownerID, scopedKey string) (*CreateResult, error) {
	rec, err := e.idempotency.Get(ctx, scopedKey)
	if err != nil {
		return nil, fmt.Errorf("load idempotency record: %w", err)
	}
	if rec == nil || rec.OrderID == "" {
		return nil, nil
	}
	o, err := e.orders.Get(ctx, ownerID, rec.OrderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, nil
	}
	e.logger.Info().Str("order_id", o.OrderID).Msg("checkout replayed")
	return &CreateResult{Order: o, Replayed: true}, nil
}

func validateSelections(selections []Selection) ([]inventory.Demand, error) {
	if len(selections) == 0 {
		return nil, &InvalidOrderError{Reason: "order has no items"}
	}
	idx := map[inventory.Ref]int{}
	var demands []inventory.Demand
	for i, s := range selections {
		if !s.Product.Valid() {
			return nil, &InvalidOrderError{Reason: fmt.Sprintf("item %d: incomplete product reference", i)}
		}
		if s.Quantity < 1 || s.Quantity > inventory.MaxQuantity {
			return nil, &InvalidOrderError{Reason: fmt.Sprintf("item %d: quantity must be between 1 and %d", i, inventory.MaxQuantity)}
		}
		if j, ok := idx[s.Product]; ok {
			if demands[j].Quantity > inventory.MaxQuantity-s.Quantity {
				return nil, &InvalidOrderError{Reason: fmt.Sprintf("product %s: more than %d units", s.Product, inventory.MaxQuantity)}
			}
			demands[j].Quantity += s.Quantity
			continue
		}
		idx[s.Product] = len(demands)
		demands = append(demands, inventory.Demand{Ref: s.Product, Quantity: s.Quantity})
	}
	if len(demands) > inventory.MaxDistinctProducts {
		return nil, &InvalidOrderError{Reason: fmt.Sprintf("at most %d distinct products per order", inventory.MaxDistinctProducts)}
	}
	return demands, nil
}
