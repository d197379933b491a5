package main

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/ordenes-checkout/internal/auth"
	"github.com/MikeMC777/ordenes-checkout/internal/fulfillment"
	"github.com/MikeMC777/ordenes-checkout/internal/httpx"
	"github.com/MikeMC777/ordenes-checkout/internal/idempotency"
	ord "github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
)

const maxWebhookBody = 1 << 20

func callerFrom(c *gin.Context) fulfillment.Caller {
	id, ok := auth.FromContext(c)
	if !ok {
		return fulfillment.Caller{}
	}
	return fulfillment.Caller{UserID: id.UserID, Email: id.Email, Admin: id.IsAdmin()}
}

func toLines(items []ord.CreateOrderItem) []product.Line {
	out := make([]product.Line, len(items))
	for i, it := range items {
		out[i] = product.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}

func placeInput(req ord.CreateOrderRequest) fulfillment.PlaceOrderInput {
	return fulfillment.PlaceOrderInput{
		Lines:     toLines(req.Items),
		Region:    req.Region,
		PromoCode: req.PromoCode,
		Address:   req.ShippingAddress,
	}
}

// createOrderHandler godoc
// @Summary  Place an order
// @Tags     orders
// @Accept   json
// @Produce  json
// @Param    body body ord.CreateOrderRequest true "cart"
// @Success  201
// @Router   /orders [post]
func createOrderHandler(svc *fulfillment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, err)
			return
		}
		o, err := svc.PlaceOrder(c.Request.Context(), callerFrom(c), placeInput(req))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, o)
	}
}

// listOrdersHandler godoc
// @Summary  List orders visible to the caller
// @Tags     orders
// @Produce  json
// @Router   /orders [get]
func listOrdersHandler(svc *fulfillment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := ord.ListQuery{}
		if s := strings.TrimSpace(c.Query("status")); s != "" {
			st, err := ord.ParseStatus(s)
			if err != nil {
				httpx.WriteError(c, err)
				return
			}
			q.Status = st
		}
		var err error
		if q.Limit, err = intQuery(c, "limit"); err != nil {
			httpx.Abort(c, httpx.NewError("validation_error", "limit must be a number", http.StatusBadRequest))
			return
		}
		if q.Offset, err = intQuery(c, "offset"); err != nil {
			httpx.Abort(c, httpx.NewError("validation_error", "offset must be a number", http.StatusBadRequest))
			return
		}
		q = q.Normalize()

		orders, err := svc.List(c.Request.Context(), callerFrom(c), q)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		if orders == nil {
			orders = []ord.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders, "limit": q.Limit, "offset": q.Offset})
	}
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// getOrderHandler godoc
// @Summary  Get an order
// @Tags     orders
// @Produce  json
// @Param    id path string true "order id"
// @Router   /orders/{id} [get]
func getOrderHandler(svc *fulfillment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.Get(c.Request.Context(), callerFrom(c), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// updateStatusHandler godoc
// @Summary  Move an order through its lifecycle (admin)
// @Tags     orders
// @Accept   json
// @Produce  json
// @Param    id   path string                  true "order id"
// @Param    body body ord.UpdateStatusRequest true "new status"
// @Router   /orders/{id}/status [patch]
func updateStatusHandler(svc *fulfillment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, err)
			return
		}
		to, err := ord.ParseStatus(req.Status)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		o, err := svc.UpdateStatus(c.Request.Context(), callerFrom(c), c.Param("id"), to, strings.TrimSpace(req.TrackingNumber))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// cancelOrderHandler godoc
// @Summary  Cancel an order
// @Tags     orders
// @Produce  json
// @Param    id path string true "order id"
// @Router   /orders/{id}/cancel [post]
func cancelOrderHandler(svc *fulfillment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.Cancel(c.Request.Context(), callerFrom(c), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// checkoutSessionHandler godoc
// @Summary  Place an order and open a hosted payment session
// @Tags     checkout
// @Accept   json
// @Produce  json
// @Param    body body ord.CheckoutRequest true "cart"
// @Router   /checkout/session [post]
func checkoutSessionHandler(gw *fulfillment.CheckoutGateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, err)
			return
		}
		res, err := gw.Open(c.Request.Context(), callerFrom(c), fulfillment.CheckoutInput{
			PlaceOrderInput: placeInput(req.CreateOrderRequest),
			Provider:        req.Provider,
			IdempotencyKey:  strings.TrimSpace(c.GetHeader(idempotency.HeaderName)),
		})
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"orderId":     res.OrderID,
			"provider":    res.Provider,
			"sessionId":   res.SessionID,
			"redirectUrl": res.RedirectURL,
			"total":       res.Total.StringFixed(2),
		})
	}
}

type validatePromoRequest struct {
	Code     string          `json:"code"     binding:"required,max=50"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// validatePromoHandler godoc
// @Summary  Check a promo code against a subtotal
// @Tags     promos
// @Accept   json
// @Produce  json
// @Router   /promos/validate [post]
func validatePromoHandler(svc *fulfillment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validatePromoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, err)
			return
		}
		if req.Subtotal.IsNegative() {
			httpx.Abort(c, httpx.NewError("validation_error", "subtotal must not be negative", http.StatusBadRequest))
			return
		}
		v, err := svc.ValidatePromo(c.Request.Context(), req.Code, req.Subtotal)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"valid":        true,
			"code":         v.Code,
			"description":  v.Description,
			"discountRate": v.DiscountRate,
			"discount":     v.Discount.StringFixed(2),
		})
	}
}

// activePromosHandler godoc
// @Summary  List active promo codes
// @Tags     promos
// @Produce  json
// @Router   /promos/active [get]
func activePromosHandler(svc *fulfillment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		promos, err := svc.ActivePromos(c.Request.Context())
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"promos": promos})
	}
}

// webhookHandler godoc
// @Summary  Receive a payment provider webhook
// @Tags     webhooks
// @Param    provider path string true "stripe or yoco"
// @Router   /webhooks/{provider} [post]
func webhookHandler(rec *fulfillment.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
		if err != nil {
			httpx.Abort(c, httpx.NewError("malformed_payload", "unable to read body", http.StatusBadRequest))
			return
		}
		if len(payload) > maxWebhookBody {
			httpx.Abort(c, httpx.NewError("payload_too_large", "webhook body too large", http.StatusRequestEntityTooLarge))
			return
		}
		res, err := rec.Handle(c.Request.Context(), c.Param("provider"), payload, c.Request.Header)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// adminOnly hides admin routes from everyone else.
func adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.FromContext(c)
		if !ok || !id.IsAdmin() {
			httpx.WriteError(c, ord.ErrNotFound)
			return
		}
		c.Next()
	}
}

func noRoute(c *gin.Context) {
	httpx.Abort(c, httpx.NewError("not_found", "route not found", http.StatusNotFound))
}
