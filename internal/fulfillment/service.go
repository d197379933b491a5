// Package fulfillment runs the order lifecycle: pricing and reserving at
// checkout, the single status-transition funnel, hosted payment sessions and
// webhook reconciliation.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/audit"
	"github.com/MikeMC777/ordenes-checkout/internal/customer"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/pricing"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/promo"
	"github.com/MikeMC777/ordenes-checkout/internal/store"
)

type Notifier interface {
	Notify(kind order.Notification, o order.Order)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Caller is the authenticated identity behind a request; the zero value is
// an anonymous guest.
type Caller struct {
	UserID string
	Email  string
	Admin  bool
}

func (c Caller) actor() order.Actor {
	if c.Admin {
		return order.ActorAdmin
	}
	return order.ActorCustomer
}

// canSee hides orders from everyone but their owner and admins.
func (c Caller) canSee(o *order.Order) bool {
	return c.Admin || o.OwnedBy(c.UserID)
}

type PlaceOrderInput struct {
	Lines     []product.Line
	Region    string
	PromoCode string
	Address   customer.Address
}

type Service struct {
	store    store.Manager
	pricing  pricing.Engine
	notifier Notifier
	audit    Auditor
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithAuditor(a Auditor) Option   { return func(s *Service) { s.audit = a } }
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(st store.Manager, engine pricing.Engine, opts ...Option) *Service {
	s := &Service{store: st, pricing: engine, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.Named("fulfillment")
	return s
}

// PlaceOrder prices the cart, resolves the customer, reserves stock and
// inserts the order in one transaction.
func (s *Service) PlaceOrder(ctx context.Context, caller Caller, in PlaceOrderInput) (*order.Order, error) {
	if len(in.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	region, err := pricing.ParseRegion(in.Region)
	if err != nil {
		return nil, err
	}

	var created *order.Order
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		q, err := s.quote(ctx, tx, in.Lines, region, in.PromoCode)
		if err != nil {
			return err
		}
		ref, err := customer.Resolve(ctx, tx.Customers(), caller.UserID, caller.Email, in.Address)
		if err != nil {
			return err
		}
		reserved, err := tx.Products().Reserve(ctx, q.ProductLines())
		if err != nil {
			return err
		}
		if err := matchReserved(q, reserved); err != nil {
			return err
		}

		o := &order.Order{
			ID:              uuid.NewString(),
			UserID:          ref.UserID,
			GuestID:         ref.GuestID,
			Email:           ref.Email,
			Status:          order.StatusPending,
			Subtotal:        q.Subtotal,
			Discount:        q.Discount,
			Shipping:        q.Shipping,
			Total:           q.Total,
			PromoCode:       q.PromoCode,
			Region:          string(q.Region),
			ShippingAddress: in.Address.Normalize(),
		}
		for _, l := range q.Lines {
			o.Items = append(o.Items, order.Item{
				ID:          uuid.NewString(),
				OrderID:     o.ID,
				ProductID:   l.ProductID,
				ProductName: l.Name,
				Quantity:    l.Quantity,
				Price:       l.UnitPrice,
			})
		}
		if err := tx.Orders().Create(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order placed",
		zap.String("order_id", created.ID),
		zap.String("total", created.Total.StringFixed(2)),
		zap.Int("items", len(created.Items)),
		zap.Bool("guest", created.GuestID != nil))
	s.record(ctx, audit.Entry{
		Action:   audit.ActionOrderCreated,
		EntityID: created.ID,
		Actor:    string(caller.actor()),
		Data: map[string]any{
			"total":  created.Total.StringFixed(2),
			"status": string(created.Status),
			"promo":  created.PromoCode,
		},
	})
	return created, nil
}

// matchReserved rejects the checkout if a price changed between the catalog
// read and the row lock taken by the reservation.
func matchReserved(q pricing.Quote, reserved []product.Reserved) error {
	prices := make(map[int64]decimal.Decimal, len(reserved))
	for _, r := range reserved {
		prices[r.ProductID] = r.UnitPrice
	}
	for _, l := range q.Lines {
		if p, ok := prices[l.ProductID]; !ok || !p.Equal(l.UnitPrice) {
			return fmt.Errorf("%w: product %d", ErrPriceChanged, l.ProductID)
		}
	}
	return nil
}

// Quote prices a cart without reserving anything.
func (s *Service) Quote(ctx context.Context, lines []product.Line, region, promoCode string) (pricing.Quote, error) {
	if len(lines) == 0 {
		return pricing.Quote{}, ErrEmptyCart
	}
	r, err := pricing.ParseRegion(region)
	if err != nil {
		return pricing.Quote{}, err
	}
	var q pricing.Quote
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		q, err = s.quote(ctx, tx, lines, r, promoCode)
		return err
	})
	return q, err
}

func (s *Service) quote(ctx context.Context, tx store.Tx, lines []product.Line, region pricing.Region, promoCode string) (pricing.Quote, error) {
	catalog, err := tx.Products().GetMany(ctx, product.IDs(lines))
	if err != nil {
		return pricing.Quote{}, fmt.Errorf("load catalog: %w", err)
	}
	p, err := s.lookupPromo(ctx, tx, promoCode)
	if err != nil {
		return pricing.Quote{}, err
	}
	return s.pricing.Quote(lines, region, catalog, p)
}

// lookupPromo returns nil for an empty or unknown code.
func (s *Service) lookupPromo(ctx context.Context, tx store.Tx, code string) (*promo.Promo, error) {
	if promo.NormalizeCode(code) == "" {
		return nil, nil
	}
	p, err := tx.Promos().Get(ctx, code)
	if errors.Is(err, promo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load promo: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, caller Caller, id string) (*order.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, order.ErrNotFound
	}
	var o *order.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		o, err = tx.Orders().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !caller.canSee(o) {
		return nil, order.ErrNotFound
	}
	return o, nil
}

// List shows admins every order and everyone else their own.
func (s *Service) List(ctx context.Context, caller Caller, q order.ListQuery) ([]order.Order, error) {
	if !caller.Admin {
		if caller.UserID == "" {
			return nil, nil
		}
		q.UserID = caller.UserID
	}
	var out []order.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		out, err = tx.Orders().List(ctx, q)
		return err
	})
	return out, err
}

// Cancel is open to the owner while pending and to admins afterwards.
func (s *Service) Cancel(ctx context.Context, caller Caller, id string) (*order.Order, error) {
	return s.Transition(ctx, TransitionRequest{
		OrderID: id,
		To:      order.StatusCancelled,
		Actor:   caller.actor(),
		Caller:  &caller,
	})
}

// UpdateStatus is the admin path; non-admins see the order as missing.
func (s *Service) UpdateStatus(ctx context.Context, caller Caller, id string, to order.Status, tracking string) (*order.Order, error) {
	if !caller.Admin {
		return nil, order.ErrNotFound
	}
	return s.Transition(ctx, TransitionRequest{
		OrderID:        id,
		To:             to,
		Actor:          order.ActorAdmin,
		TrackingNumber: tracking,
		Caller:         &caller,
	})
}

type PromoValidation struct {
	Code         string          `json:"code"`
	Description  string          `json:"description"`
	DiscountRate decimal.Decimal `json:"discountRate"`
	Discount     decimal.Decimal `json:"discount"`
}

// ValidatePromo explains why a code would or would not apply to subtotal.
func (s *Service) ValidatePromo(ctx context.Context, code string, subtotal decimal.Decimal) (*PromoValidation, error) {
	var p *promo.Promo
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		p, err = s.lookupPromo(ctx, tx, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	discount, err := s.pricing.ValidatePromo(p, subtotal.Round(2))
	if err != nil {
		var rej *pricing.PromoRejectedError
		if errors.As(err, &rej) && rej.Code == "" {
			rej.Code = promo.NormalizeCode(code)
		}
		return nil, err
	}
	return &PromoValidation{Code: p.Code, Description: p.Description, DiscountRate: p.DiscountRate, Discount: discount}, nil
}

func (s *Service) ActivePromos(ctx context.Context) ([]promo.Promo, error) {
	var out []promo.Promo
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		out, err = tx.Promos().ListActive(ctx, s.now())
		return err
	})
	return out, err
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if s.audit != nil {
		s.audit.Record(ctx, e)
	}
}

func (s *Service) notify(kind order.Notification, o *order.Order) {
	if s.notifier != nil && kind != order.NotifyNone {
		s.notifier.Notify(kind, *o)
	}
}
