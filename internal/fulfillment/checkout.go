package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/pricing"
	"github.com/MikeMC777/ordenes-checkout/internal/store"
)

type CheckoutConfig struct {
	Currency string
	// Redirect URLs may contain {ORDER_ID}.
	SuccessURL string
	CancelURL  string
	FailureURL string
}

type CheckoutInput struct {
	PlaceOrderInput
	Provider       string
	IdempotencyKey string
}

type CheckoutResult struct {
	OrderID     string          `json:"orderId"`
	Provider    string          `json:"provider"`
	SessionID   string          `json:"sessionId"`
	RedirectURL string          `json:"redirectUrl"`
	Total       decimal.Decimal `json:"total"`
	Quote       pricing.Quote   `json:"quote"`
}

// CheckoutGateway opens a hosted payment session for a freshly placed order.
// The amount sent to the provider is always the server-side total.
type CheckoutGateway struct {
	svc       *Service
	providers *payment.Registry
	cfg       CheckoutConfig
	log       *zap.Logger
}

func NewCheckoutGateway(svc *Service, providers *payment.Registry, cfg CheckoutConfig, log *zap.Logger) *CheckoutGateway {
	if cfg.Currency == "" {
		cfg.Currency = "ZAR"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutGateway{svc: svc, providers: providers, cfg: cfg, log: log.Named("checkout")}
}

func (g *CheckoutGateway) Open(ctx context.Context, caller Caller, in CheckoutInput) (*CheckoutResult, error) {
	provider, err := g.providers.Get(in.Provider)
	if err != nil {
		return nil, err
	}

	placed, err := g.svc.PlaceOrder(ctx, caller, in.PlaceOrderInput)
	if err != nil {
		return nil, err
	}

	// Second pricing pass on the same cart. Stock is already held, so only a
	// price or promo change can make it disagree with the stored total.
	q, err := g.svc.Quote(ctx, in.Lines, in.Region, in.PromoCode)
	if err != nil {
		g.abandon(ctx, placed.ID, "requote failed", err)
		return nil, err
	}
	if !pricing.Same(q.Total, placed.Total) {
		g.abandon(ctx, placed.ID, "price changed", nil)
		return nil, fmt.Errorf("%w: order total %s, current total %s",
			ErrPriceChanged, placed.Total.StringFixed(2), q.Total.StringFixed(2))
	}

	sess, err := provider.CreateSession(ctx, payment.SessionRequest{
		OrderID:        placed.ID,
		Amount:         payment.MinorUnits(placed.Total),
		Currency:       g.cfg.Currency,
		Email:          placed.Email,
		Description:    "Order " + shortID(placed.ID),
		SuccessURL:     withOrderID(g.cfg.SuccessURL, placed.ID),
		CancelURL:      withOrderID(g.cfg.CancelURL, placed.ID),
		FailureURL:     withOrderID(g.cfg.FailureURL, placed.ID),
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		g.abandon(ctx, placed.ID, "provider session failed", err)
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	if err := g.svc.attachPayment(ctx, placed.ID, provider.Name(), sess.ID); err != nil {
		// The session is live and its metadata carries the order id, so
		// webhooks still find the order.
		g.log.Error("payment reference not stored",
			zap.String("order_id", placed.ID),
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}

	g.log.Info("checkout session opened",
		zap.String("order_id", placed.ID),
		zap.String("provider", provider.Name()),
		zap.String("session_id", sess.ID))
	return &CheckoutResult{
		OrderID:     placed.ID,
		Provider:    provider.Name(),
		SessionID:   sess.ID,
		RedirectURL: sess.RedirectURL,
		Total:       placed.Total,
		Quote:       q,
	}, nil
}

// abandon cancels the just-created order through the funnel so its stock
// returns to the shelf.
func (g *CheckoutGateway) abandon(ctx context.Context, orderID, reason string, cause error) {
	fields := []zap.Field{zap.String("order_id", orderID), zap.String("reason", reason)}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	g.log.Warn("abandoning checkout", fields...)

	_, err := g.svc.Transition(context.WithoutCancel(ctx), TransitionRequest{
		OrderID: orderID,
		To:      order.StatusCancelled,
		Actor:   order.ActorSystem,
	})
	if err != nil && !errors.Is(err, order.ErrNotFound) {
		g.log.Error("abandoned order not cancelled", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *Service) attachPayment(ctx context.Context, orderID, provider, ref string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Orders().SetPaymentRef(ctx, orderID, provider, ref)
	})
}

func withOrderID(url, id string) string {
	return strings.ReplaceAll(url, "{ORDER_ID}", id)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
