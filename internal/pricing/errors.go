package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type RejectReason string

const (
	RejectInvalid      RejectReason = "invalid"
	RejectInactive     RejectReason = "inactive"
	RejectExpired      RejectReason = "expired"
	RejectBelowMinimum RejectReason = "below_minimum"
)

// PromoRejectedError is only surfaced by ValidatePromo; order creation
// treats a rejected promo as no discount.
type PromoRejectedError struct {
	Code        string
	Reason      RejectReason
	MinPurchase *decimal.Decimal
}

func (e *PromoRejectedError) Error() string {
	return fmt.Sprintf("promo %q rejected: %s", e.Code, e.Reason)
}

// Message is the customer-facing explanation.
func (e *PromoRejectedError) Message() string {
	switch e.Reason {
	case RejectInactive:
		return "This promo code is no longer active"
	case RejectExpired:
		return "This promo code has expired"
	case RejectBelowMinimum:
		if e.MinPurchase != nil {
			return fmt.Sprintf("Minimum purchase of %s required for this promo code", e.MinPurchase.StringFixed(2))
		}
		return "Minimum purchase not reached for this promo code"
	default:
		return "Invalid promo code"
	}
}
