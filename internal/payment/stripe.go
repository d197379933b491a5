package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"
)

const stripeName = "stripe"

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Tolerance     time.Duration
	Backends      *stripe.Backends
	Logger        *zap.Logger
	// Sessions replaces the live API client; tests inject a fake.
	Sessions stripeSessionAPI
}

type Stripe struct {
	sessions      stripeSessionAPI
	webhookSecret string
	tolerance     time.Duration
	log           *zap.Logger
}

func NewStripe(cfg StripeConfig) (*Stripe, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: secret key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = client.New(key, cfg.Backends).CheckoutSessions
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Stripe{
		sessions:      sessions,
		webhookSecret: cfg.WebhookSecret,
		tolerance:     tolerance,
		log:           log.Named("stripe"),
	}, nil
}

func (s *Stripe) Name() string { return stripeName }

// CreateSession opens a hosted Checkout Session for a single line carrying the
// server-computed total. The order id travels on both the session and the
// payment intent so either family of events can be matched.
func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	meta := map[string]string{"order_id": req.OrderID}
	desc := req.Description
	if desc == "" {
		desc = "Order " + req.OrderID
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		Metadata:          meta,
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(desc),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": req.OrderID},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	sess, err := s.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	s.log.Info("checkout session created",
		zap.String("order_id", req.OrderID),
		zap.String("session_id", sess.ID),
		zap.Int64("amount", req.Amount))
	return Session{ID: sess.ID, Provider: stripeName, RedirectURL: sess.URL}, nil
}

func (s *Stripe) VerifyWebhook(payload []byte, header http.Header) error {
	sig := header.Get("Stripe-Signature")
	if sig == "" {
		return fmt.Errorf("%w: missing Stripe-Signature", ErrSignature)
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sig, s.webhookSecret, s.tolerance); err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return nil
}

// stripeObject holds the handful of fields read from checkout sessions,
// payment intents and charges.
type stripeObject struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	Metadata      map[string]string `json:"metadata"`
	PaymentStatus string            `json:"payment_status"`
}

func (s *Stripe) NormalizeEvent(payload []byte) (Event, error) {
	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if evt.ID == "" || evt.Type == "" || evt.Data == nil {
		return Event{}, fmt.Errorf("%w: missing id, type or data", ErrMalformed)
	}

	out := Event{
		Provider: stripeName,
		ID:       evt.ID,
		Type:     string(evt.Type),
		Payload:  payload,
	}
	var obj stripeObject
	if err := json.Unmarshal(evt.Data.Raw, &obj); err != nil {
		return Event{}, fmt.Errorf("%w: data.object: %v", ErrMalformed, err)
	}
	out.Kind = stripeKind(out.Type, obj.PaymentStatus)
	out.OrderID = orderIDFrom(obj.Metadata)
	out.PaymentRef = obj.ID
	return out, nil
}

// stripeKind maps an event type to its effect. A completed session with a
// delayed payment method is still unpaid; the async_payment events settle it.
func stripeKind(t, paymentStatus string) Kind {
	switch t {
	case "checkout.session.completed":
		switch stripe.CheckoutSessionPaymentStatus(paymentStatus) {
		case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
			return KindSucceeded
		}
		return KindIgnored
	case "checkout.session.async_payment_succeeded", "payment_intent.succeeded":
		return KindSucceeded
	case "payment_intent.payment_failed", "checkout.session.expired", "checkout.session.async_payment_failed":
		return KindFailed
	case "charge.refunded":
		return KindRefunded
	}
	return KindIgnored
}
