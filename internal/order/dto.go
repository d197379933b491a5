package order

import "github.com/MikeMC777/ordenes-checkout/internal/customer"

// CreateOrderItem payload de ítem. Prices are never accepted from the client.
// swagger:model CreateOrderItem
type CreateOrderItem struct {
	ProductID int64 `json:"productId" binding:"required,gt=0" example:"7"`
	Quantity  int   `json:"quantity"  binding:"required,min=1,max=99" example:"2"`
}

// CreateOrderRequest payload de creación de orden.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	Items           []CreateOrderItem `json:"items"           binding:"required,min=1,dive"`
	ShippingAddress customer.Address  `json:"shippingAddress" binding:"required"`
	PromoCode       string            `json:"promoCode"       binding:"max=50" example:"ROOTED15"`
	Region          string            `json:"region"          binding:"omitempty,oneof=domestic international sa za intl" example:"domestic"`
}

// UpdateStatusRequest is the admin status payload.
// swagger:model UpdateStatusRequest
type UpdateStatusRequest struct {
	Status         string `json:"status"         binding:"required" example:"shipped"`
	TrackingNumber string `json:"trackingNumber" binding:"max=100"`
}

// CheckoutRequest carries the raw cart; totals are recomputed server-side.
// swagger:model CheckoutRequest
type CheckoutRequest struct {
	CreateOrderRequest
	Provider string `json:"provider" binding:"omitempty,oneof=stripe yoco" example:"stripe"`
}
