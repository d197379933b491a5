package fulfillment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/audit"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/store"
)

type TransitionRequest struct {
	OrderID        string
	To             order.Status
	Actor          order.Actor
	TrackingNumber string
	// Caller, when set, restricts the transition to orders the caller can see.
	Caller *Caller
}

// applied is the outcome of a transition inside a transaction; its effects
// run only after commit.
type applied struct {
	order   *order.Order
	from    order.Status
	effects order.Effects
	changed bool
	actor   order.Actor
}

// Transition is the only way an order's status changes. The row is locked,
// the move is validated against the transition table, stock is released for
// cancellations and the status is written with a compare-and-set. Asking for
// the status the order already has is a no-op.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*order.Order, error) {
	if _, err := uuid.Parse(req.OrderID); err != nil {
		return nil, order.ErrNotFound
	}
	var res applied
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if req.Caller != nil && !req.Caller.canSee(o) {
			return order.ErrNotFound
		}
		res, err = s.apply(ctx, tx, o, req.To, req.Actor, req.TrackingNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, res)
	return res.order, nil
}

// apply runs inside the caller's transaction with o already locked.
func (s *Service) apply(ctx context.Context, tx store.Tx, o *order.Order, to order.Status, actor order.Actor, tracking string) (applied, error) {
	res := applied{order: o, from: o.Status, actor: actor}
	if o.Status == to {
		return res, nil
	}
	effects, err := order.Transition(o.Status, to, actor)
	if err != nil {
		return res, err
	}
	if effects.ReleaseStock {
		if err := tx.Products().Release(ctx, o.Lines()); err != nil {
			return res, err
		}
	}

	at := s.now().UTC()
	if err := tx.Orders().UpdateStatus(ctx, order.StatusChange{
		OrderID:        o.ID,
		From:           o.Status,
		To:             to,
		TrackingNumber: tracking,
		At:             at,
	}); err != nil {
		return res, err
	}

	o.Status = to
	o.UpdatedAt = at
	switch to {
	case order.StatusShipped:
		o.ShippedAt = &at
		if tracking != "" {
			o.TrackingNumber = &tracking
		}
	case order.StatusDelivered:
		o.DeliveredAt = &at
	}
	res.effects = effects
	res.changed = true
	return res, nil
}

// afterCommit carries out the best-effort side effects of a transition.
func (s *Service) afterCommit(ctx context.Context, res applied) {
	if !res.changed {
		return
	}
	o := res.order
	s.log.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(res.from)),
		zap.String("to", string(o.Status)),
		zap.String("actor", string(res.actor)),
		zap.Bool("stock_released", res.effects.ReleaseStock))
	s.notify(res.effects.Notify, o)
	data := map[string]any{"from": string(res.from), "to": string(o.Status)}
	if o.TrackingNumber != nil {
		data["tracking_number"] = *o.TrackingNumber
	}
	s.record(ctx, audit.Entry{
		Action:   audit.ActionStatusChanged,
		EntityID: o.ID,
		Actor:    string(res.actor),
		Data:     data,
	})
}

// IsConflict reports whether err is a business-rule rejection of a transition.
func IsConflict(err error) bool {
	var ite *order.InvalidTransitionError
	return errors.As(err, &ite) || errors.Is(err, order.ErrForbiddenTransition) || errors.Is(err, order.ErrStatusConflict)
}
