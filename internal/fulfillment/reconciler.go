package fulfillment

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/audit"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/store"
)

// Outcome describes what a webhook did. Every outcome is acknowledged to the
// provider; only errors returned from Handle make it retry.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeAlreadyDone   Outcome = "already_in_state"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeInformational Outcome = "informational"
	OutcomeOrderNotFound Outcome = "order_not_found"
	OutcomeStale         Outcome = "stale"
	OutcomeRejected      Outcome = "rejected_transition"
)

type WebhookResult struct {
	Provider string  `json:"provider"`
	EventID  string  `json:"eventId"`
	OrderID  string  `json:"orderId,omitempty"`
	Outcome  Outcome `json:"outcome"`
}

// Reconciler turns verified provider webhooks into order transitions. It only
// knows payment.Event; provider payload shapes stay inside internal/payment.
type Reconciler struct {
	svc       *Service
	providers *payment.Registry
	log       *zap.Logger
}

func NewReconciler(svc *Service, providers *payment.Registry, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{svc: svc, providers: providers, log: log.Named("reconciler")}
}

// Handle verifies, normalises and applies one delivery. Errors wrapping
// payment.ErrUnsupportedProvider, payment.ErrSignature or payment.ErrMalformed
// are permanent; anything else is transient.
func (r *Reconciler) Handle(ctx context.Context, providerName string, payload []byte, header http.Header) (*WebhookResult, error) {
	provider, err := r.providers.Get(providerName)
	if err != nil || providerName == "" {
		return nil, payment.ErrUnsupportedProvider
	}
	if err := provider.VerifyWebhook(payload, header); err != nil {
		r.log.Warn("webhook rejected", zap.String("provider", provider.Name()), zap.Error(err))
		return nil, err
	}
	evt, err := provider.NormalizeEvent(payload)
	if err != nil {
		r.log.Warn("webhook not understood", zap.String("provider", provider.Name()), zap.Error(err))
		return nil, err
	}
	return r.Apply(ctx, evt)
}

// Apply processes an already verified event.
func (r *Reconciler) Apply(ctx context.Context, evt payment.Event) (*WebhookResult, error) {
	res := &WebhookResult{Provider: evt.Provider, EventID: evt.ID}
	var done applied

	err := r.svc.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		done = applied{}
		fresh, err := tx.Events().Record(ctx, evt)
		if err != nil {
			return err
		}
		if !fresh {
			res.Outcome = OutcomeDuplicate
			return nil
		}

		var target order.Status
		switch evt.Kind {
		case payment.KindSucceeded:
			target = order.StatusPaid
		case payment.KindFailed:
			target = order.StatusCancelled
		case payment.KindRefunded:
			res.Outcome = OutcomeInformational
			return nil
		default:
			res.Outcome = OutcomeIgnored
			return nil
		}

		o, err := r.locate(ctx, tx, evt)
		if errors.Is(err, order.ErrNotFound) {
			res.Outcome = OutcomeOrderNotFound
			return nil
		}
		if err != nil {
			return err
		}
		res.OrderID = o.ID

		switch {
		case o.Status == target:
			res.Outcome = OutcomeAlreadyDone
			return nil
		case target == order.StatusCancelled && o.Status != order.StatusPending:
			// a failure that arrives after a success; deliveries are unordered
			res.Outcome = OutcomeStale
			return nil
		}

		done, err = r.svc.apply(ctx, tx, o, target, order.ActorPayment, "")
		var ite *order.InvalidTransitionError
		if errors.As(err, &ite) {
			res.Outcome = OutcomeRejected
			return nil
		}
		if err != nil {
			return err
		}
		res.Outcome = OutcomeApplied
		return nil
	})
	if err != nil {
		r.log.Error("webhook processing failed",
			zap.String("provider", evt.Provider),
			zap.String("event_id", evt.ID),
			zap.Error(err))
		return nil, err
	}

	r.logOutcome(evt, res)
	switch res.Outcome {
	case OutcomeApplied:
		r.svc.afterCommit(ctx, done)
	case OutcomeRejected, OutcomeStale, OutcomeOrderNotFound:
		r.svc.record(ctx, audit.Entry{
			Action:   audit.ActionWebhookIgnored,
			EntityID: res.OrderID,
			Actor:    string(order.ActorPayment),
			Data: map[string]any{
				"provider": evt.Provider,
				"event_id": evt.ID,
				"type":     evt.Type,
				"outcome":  string(res.Outcome),
			},
		})
	}
	return res, nil
}

// locate prefers the order id carried in metadata and falls back to the
// payment reference stored when the session was created.
func (r *Reconciler) locate(ctx context.Context, tx store.Tx, evt payment.Event) (*order.Order, error) {
	if _, err := uuid.Parse(evt.OrderID); err == nil {
		o, err := tx.Orders().GetForUpdate(ctx, evt.OrderID)
		if !errors.Is(err, order.ErrNotFound) {
			return o, err
		}
	}
	if evt.PaymentRef == "" {
		return nil, order.ErrNotFound
	}
	return tx.Orders().FindByPaymentRefForUpdate(ctx, evt.Provider, evt.PaymentRef)
}

func (r *Reconciler) logOutcome(evt payment.Event, res *WebhookResult) {
	fields := []zap.Field{
		zap.String("provider", evt.Provider),
		zap.String("event_id", evt.ID),
		zap.String("type", evt.Type),
		zap.String("order_id", res.OrderID),
		zap.String("outcome", string(res.Outcome)),
	}
	switch res.Outcome {
	case OutcomeOrderNotFound, OutcomeRejected, OutcomeStale:
		r.log.Warn("webhook acknowledged without change", fields...)
	case OutcomeInformational:
		r.log.Info("refund reported by provider", fields...)
	default:
		r.log.Info("webhook processed", fields...)
	}
}
