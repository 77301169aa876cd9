package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/inventory"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

// createOrderStructValidation bounds the number of distinct products and the
// units of each. Repeated lines for the same product are summed.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	units := map[inventory.Ref]int{}
	for _, it := range req.Items {
		ref := inventory.Ref{OwnerID: it.OwnerID, Category: it.Category, ProductID: it.ProductID}
		if it.Quantity > inventory.MaxQuantity || units[ref] > inventory.MaxQuantity-it.Quantity {
			sl.ReportError(req.Items, "items", "Items", "max_quantity", fmt.Sprintf("%s: more than %d units", ref, inventory.MaxQuantity))
			return
		}
		units[ref] += it.Quantity
	}

	if len(units) > inventory.MaxDistinctProducts {
		sl.ReportError(req.Items, "items", "Items", "max_distinct_products", fmt.Sprintf("%d distinct products > %d", len(units), inventory.MaxDistinctProducts))
	}
}
