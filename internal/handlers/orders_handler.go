package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/checkout"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/inventory"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/validation"
)

// IdempotencyKeyHeader lets a client retry POST /orders safely.
const IdempotencyKeyHeader = "Idempotency-Key"

func (a *api) createOrder(c *gin.Context) {
	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	selections := make([]checkout.Selection, 0, len(req.Items))
	for _, it := range req.Items {
		selections = append(selections, checkout.Selection{
			Product:  inventory.Ref{OwnerID: it.OwnerID, Category: it.Category, ProductID: it.ProductID},
			Quantity: it.Quantity,
		})
	}

	res, err := a.engine.CreateOrder(c.Request.Context(), req.UserID, selections, c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		a.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.Header("Location", fmt.Sprintf("/users/%s/orders/%s", res.Order.OwnerID, res.Order.OrderID))
	c.JSON(status, res.Order)
}

func (a *api) listOrders(c *gin.Context) {
	list, err := a.engine.ListOrders(c.Request.Context(), c.Param("userId"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (a *api) getOrder(c *gin.Context) {
	o, err := a.engine.GetOrder(c.Request.Context(), c.Param("userId"), c.Param("orderId"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// confirmOrder asks the gateway directly whether the order's intent succeeded,
// for clients that returned from the PromptPay app before the webhook landed.
func (a *api) confirmOrder(c *gin.Context) {
	o, err := a.engine.ConfirmManually(c.Request.Context(), c.Param("userId"), c.Param("orderId"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
