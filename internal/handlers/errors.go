package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/checkout"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/logging"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
)

// writeError maps engine errors to status codes. Anything unrecognised is a
// 500 and is logged; client errors are not.
func (a *api) writeError(c *gin.Context, err error) {
	var (
		invalid      *checkout.InvalidOrderError
		stock        *checkout.InsufficientStockError
		amount       *checkout.PaymentAmountInvalidError
		notConfirmed *checkout.PaymentNotConfirmedError
		gateway      *payments.GatewayError
	)

	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
	case errors.As(err, &stock):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     stock.Error(),
			"productId": stock.Product.ProductID,
			"requested": stock.Requested,
			"available": stock.Available,
		})
	case errors.As(err, &amount):
		msg := "Order amount must be greater than zero"
		if amount.Overflow {
			msg = amount.Error()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
	case errors.Is(err, checkout.ErrAccountEmailMissing):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No email found in profile. Please add an email before making a payment."})
	case errors.Is(err, checkout.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, checkout.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, checkout.ErrOrderNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &notConfirmed):
		c.JSON(http.StatusConflict, gin.H{"error": notConfirmed.Error(), "paymentStatus": notConfirmed.Status})
	case errors.As(err, &gateway):
		a.logger.Error().Err(err).Str("request_id", logging.RequestID(c)).Msg("payment gateway call failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment temporarily unavailable"})
	default:
		a.logger.Error().Err(err).Str("request_id", logging.RequestID(c)).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
