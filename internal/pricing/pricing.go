// Package pricing computes authoritative order totals from server-held catalog
// prices. Nothing here performs I/O: callers load the catalog snapshot and the
// promo row, then ask the Engine for a Quote.
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/promo"
)

type Region string

const (
	RegionDomestic      Region = "domestic"
	RegionInternational Region = "international"
)

var ErrUnknownRegion = errors.New("unknown shipping region")

// ParseRegion accepts the canonical tags plus the storefront's legacy aliases.
func ParseRegion(s string) (Region, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "domestic", "sa", "za":
		return RegionDomestic, nil
	case "international", "intl":
		return RegionInternational, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRegion, s)
}

// ShippingRules are flat fees; domestic shipping is free from FreeThreshold up.
type ShippingRules struct {
	DomesticFee      decimal.Decimal
	InternationalFee decimal.Decimal
	FreeThreshold    decimal.Decimal
}

func DefaultShippingRules() ShippingRules {
	return ShippingRules{
		DomesticFee:      decimal.NewFromInt(60),
		InternationalFee: decimal.NewFromInt(300),
		FreeThreshold:    decimal.NewFromInt(300),
	}
}

type PricedLine struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type Quote struct {
	Lines     []PricedLine    `json:"lines"`
	Region    Region          `json:"region"`
	PromoCode string          `json:"promoCode,omitempty"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
}

func (l PricedLine) MarshalJSON() ([]byte, error) {
	type plain PricedLine
	return json.Marshal(struct {
		plain
		UnitPrice string `json:"unitPrice"`
		LineTotal string `json:"lineTotal"`
	}{plain(l), l.UnitPrice.StringFixed(2), l.LineTotal.StringFixed(2)})
}

// MarshalJSON renders amounts with two decimals.
func (q Quote) MarshalJSON() ([]byte, error) {
	type plain Quote
	return json.Marshal(struct {
		plain
		Subtotal string `json:"subtotal"`
		Discount string `json:"discount"`
		Shipping string `json:"shipping"`
		Total    string `json:"total"`
	}{
		plain:    plain(q),
		Subtotal: q.Subtotal.StringFixed(2),
		Discount: q.Discount.StringFixed(2),
		Shipping: q.Shipping.StringFixed(2),
		Total:    q.Total.StringFixed(2),
	})
}

// ProductLines converts the priced lines back to ledger lines.
func (q Quote) ProductLines() []product.Line {
	out := make([]product.Line, len(q.Lines))
	for i, l := range q.Lines {
		out[i] = product.Line{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return out
}

type Engine struct {
	Shipping ShippingRules
	Now      func() time.Time
}

func NewEngine(rules ShippingRules) Engine {
	return Engine{Shipping: rules, Now: time.Now}
}

func (e Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Quote prices lines against catalog. Client-submitted prices are never an
// input. The subtotal is rounded once, after summing, not per line.
func (e Engine) Quote(lines []product.Line, region Region, catalog map[int64]product.Product, p *promo.Promo) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, errors.New("pricing: cart is empty")
	}
	merged := product.MergeLines(lines)

	q := Quote{Region: region, Lines: make([]PricedLine, 0, len(merged))}
	subtotal := decimal.Zero
	for _, l := range merged {
		if l.Quantity <= 0 {
			return Quote{}, fmt.Errorf("pricing: quantity for product %d must be positive", l.ProductID)
		}
		prod, ok := catalog[l.ProductID]
		if !ok {
			return Quote{}, &product.UnavailableError{ProductID: l.ProductID, Err: product.ErrNotFound}
		}
		if !prod.IsActive {
			return Quote{}, &product.UnavailableError{ProductID: l.ProductID, Err: product.ErrInactive}
		}
		lineTotal := prod.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		q.Lines = append(q.Lines, PricedLine{
			ProductID: prod.ID,
			Name:      prod.Name,
			Quantity:  l.Quantity,
			UnitPrice: prod.Price,
			LineTotal: lineTotal,
		})
	}

	q.Subtotal = subtotal.Round(2)
	q.Discount = e.Discount(p, q.Subtotal)
	if q.Discount.IsPositive() {
		q.PromoCode = p.Code
	}
	q.Shipping = e.ShippingCost(q.Subtotal, region)

	net := q.Subtotal.Sub(q.Discount)
	if net.IsNegative() {
		net = decimal.Zero
	}
	q.Total = net.Add(q.Shipping).Round(2)
	return q, nil
}

// Discount returns zero for a missing, inactive, expired or below-minimum promo.
func (e Engine) Discount(p *promo.Promo, subtotal decimal.Decimal) decimal.Decimal {
	if err := e.check(p, subtotal); err != nil {
		return decimal.Zero
	}
	discount := subtotal.Mul(p.DiscountRate)
	if p.MaxDiscount != nil && discount.GreaterThan(*p.MaxDiscount) {
		discount = *p.MaxDiscount
	}
	return discount.Round(2)
}

// ValidatePromo is the explicit counterpart of Discount for the pre-checkout
// endpoint: same rules, but a reason instead of a silent zero.
func (e Engine) ValidatePromo(p *promo.Promo, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if err := e.check(p, subtotal); err != nil {
		return decimal.Zero, err
	}
	return e.Discount(p, subtotal), nil
}

func (e Engine) check(p *promo.Promo, subtotal decimal.Decimal) error {
	switch {
	case p == nil:
		return &PromoRejectedError{Reason: RejectInvalid}
	case !p.Active:
		return &PromoRejectedError{Code: p.Code, Reason: RejectInactive}
	case p.Expired(e.now()):
		return &PromoRejectedError{Code: p.Code, Reason: RejectExpired}
	case p.MinPurchase != nil && subtotal.LessThan(*p.MinPurchase):
		return &PromoRejectedError{Code: p.Code, Reason: RejectBelowMinimum, MinPurchase: p.MinPurchase}
	}
	return nil
}

// ShippingCost applies the flat-fee rules.
func (e Engine) ShippingCost(subtotal decimal.Decimal, region Region) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	if region == RegionInternational {
		return e.Shipping.InternationalFee
	}
	if subtotal.GreaterThanOrEqual(e.Shipping.FreeThreshold) {
		return decimal.Zero
	}
	return e.Shipping.DomesticFee
}

// Same reports whether two totals agree within one cent.
func Same(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(decimal.New(1, -2))
}
