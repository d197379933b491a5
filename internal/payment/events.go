package payment

import (
	"context"

	"github.com/MikeMC777/ordenes-checkout/internal/db"
)

// EventRepository is the webhook idempotency ledger. Record must run inside
// the same transaction as the order transition it guards.
type EventRepository interface {
	// Record stores the event and reports false if it was already recorded.
	Record(ctx context.Context, e Event) (bool, error)
}

type PGEventRepo struct{ db db.DBTX }

func NewPGEventRepo(conn db.DBTX) *PGEventRepo { return &PGEventRepo{db: conn} }

func (r *PGEventRepo) Record(ctx context.Context, e Event) (bool, error) {
	var orderID *string
	if e.OrderID != "" {
		orderID = &e.OrderID
	}
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO webhook_events (provider, event_id, event_type, order_id, payload, processed_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (provider, event_id) DO NOTHING
	`, e.Provider, e.ID, e.Type, orderID, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
