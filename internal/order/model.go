package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/ordenes-checkout/internal/customer"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
)

type Order struct {
	ID              string           `json:"id"`
	UserID          *string          `json:"user_id,omitempty"`
	GuestID         *string          `json:"guest_id,omitempty"`
	Email           string           `json:"email"`
	Status          Status           `json:"status"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	Discount        decimal.Decimal  `json:"discount"`
	Shipping        decimal.Decimal  `json:"shipping"`
	Total           decimal.Decimal  `json:"total_amount"`
	PromoCode       string           `json:"promo_code,omitempty"`
	Region          string           `json:"region"`
	ShippingAddress customer.Address `json:"shipping_address"`
	PaymentProvider *string          `json:"payment_provider,omitempty"`
	PaymentRef      *string          `json:"payment_ref,omitempty"`
	TrackingNumber  *string          `json:"tracking_number,omitempty"`
	ShippedAt       *time.Time       `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time       `json:"delivered_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Items           []Item           `json:"items,omitempty"`
}

// Item prices are a snapshot taken at purchase time and never recomputed.
type Item struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// MarshalJSON renders money as fixed two-decimal strings, the same form the
// checkout and promo endpoints use.
func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	return json.Marshal(struct {
		plain
		Subtotal string `json:"subtotal"`
		Discount string `json:"discount"`
		Shipping string `json:"shipping"`
		Total    string `json:"total_amount"`
	}{
		plain:    plain(o),
		Subtotal: o.Subtotal.StringFixed(2),
		Discount: o.Discount.StringFixed(2),
		Shipping: o.Shipping.StringFixed(2),
		Total:    o.Total.StringFixed(2),
	})
}

func (it Item) MarshalJSON() ([]byte, error) {
	type plain Item
	return json.Marshal(struct {
		plain
		Price string `json:"price"`
	}{plain(it), it.Price.StringFixed(2)})
}

// Lines returns the items as ledger lines.
func (o *Order) Lines() []product.Line {
	out := make([]product.Line, len(o.Items))
	for i, it := range o.Items {
		out[i] = product.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID string) bool {
	return userID != "" && o.UserID != nil && *o.UserID == userID
}

// StatusChange is a compare-and-set on the status column.
type StatusChange struct {
	OrderID        string
	From           Status
	To             Status
	TrackingNumber string
	At             time.Time
}

type ListQuery struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}

func (q ListQuery) Normalize() ListQuery {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
