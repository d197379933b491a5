package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/customer"
	"github.com/MikeMC777/ordenes-checkout/internal/fulfillment"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/pricing"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
)

// WriteError maps a domain error to its HTTP envelope. Anything unrecognised
// is logged and reported as internal_error.
func WriteError(c *gin.Context, err error) {
	var (
		stock  *product.InsufficientStockError
		unavl  *product.UnavailableError
		reject *pricing.PromoRejectedError
	)
	switch {
	case errors.As(err, &stock):
		Abort(c, NewError("insufficient_stock", stock.Error(), http.StatusConflict).WithDetails(map[string]any{
			"productId": stock.ProductID,
			"available": stock.Available,
			"requested": stock.Requested,
		}))
	case errors.As(err, &unavl):
		Abort(c, NewError("product_unavailable", unavl.Error(), http.StatusUnprocessableEntity).WithDetails(map[string]any{
			"productId": unavl.ProductID,
		}))
	case errors.As(err, &reject):
		Abort(c, NewError("promo_rejected", reject.Message(), http.StatusUnprocessableEntity).WithDetails(map[string]any{
			"reason": string(reject.Reason),
		}))
	case errors.Is(err, order.ErrNotFound):
		Abort(c, NewError("not_found", "order not found", http.StatusNotFound))
	case fulfillment.IsConflict(err):
		Abort(c, NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, fulfillment.ErrPriceChanged):
		Abort(c, NewError("price_changed", "prices changed, please review your cart", http.StatusConflict))
	case errors.Is(err, fulfillment.ErrProvider):
		Log(c).Warn("payment provider failure", zap.Error(err))
		Abort(c, NewError("provider_unavailable", "payment provider unavailable, please try again", http.StatusBadGateway))
	case errors.Is(err, fulfillment.ErrEmptyCart):
		Abort(c, NewError("empty_cart", "cart is empty", http.StatusBadRequest))
	case errors.Is(err, pricing.ErrUnknownRegion):
		Abort(c, NewError("unknown_region", "unknown shipping region", http.StatusBadRequest))
	case errors.Is(err, order.ErrUnknownStatus):
		Abort(c, NewError("unknown_status", "unknown order status", http.StatusBadRequest))
	case errors.Is(err, customer.ErrMissingEmail):
		Abort(c, NewError("validation_error", customer.ErrMissingEmail.Error(), http.StatusBadRequest))
	case errors.Is(err, payment.ErrUnsupportedProvider):
		Abort(c, NewError("unsupported_provider", "payment provider not supported", http.StatusNotFound))
	case errors.Is(err, payment.ErrSignature):
		Abort(c, NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
	case errors.Is(err, payment.ErrMalformed):
		Abort(c, NewError("malformed_payload", "webhook payload could not be parsed", http.StatusBadRequest))
	default:
		Internal(c, err)
	}
}
