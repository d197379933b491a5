package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeMC777/ordenes-checkout/internal/db"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict means the row no longer had the expected status.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetForUpdate locks the order row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	FindByPaymentRefForUpdate(ctx context.Context, provider, ref string) (*Order, error)
	List(ctx context.Context, q ListQuery) ([]Order, error)
	UpdateStatus(ctx context.Context, ch StatusChange) error
	SetPaymentRef(ctx context.Context, id, provider, ref string) error
}

type PGRepo struct{ db db.DBTX }

func NewPGRepo(conn db.DBTX) *PGRepo { return &PGRepo{db: conn} }

const orderColumns = `
	id, user_id, guest_id, email, status, subtotal, discount, shipping, total_amount,
	promo_code, region, shipping_address, payment_provider, payment_ref,
	tracking_number, shipped_at, delivered_at, created_at, updated_at`

// Create inserts the order and its items. It expects to run in the same
// transaction as the stock reservation.
func (r *PGRepo) Create(ctx context.Context, o *Order) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}
	if err := r.db.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, guest_id, email, status, subtotal, discount, shipping,
			total_amount, promo_code, region, shipping_address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
		RETURNING created_at, updated_at
	`, o.ID, o.UserID, o.GuestID, o.Email, string(o.Status), o.Subtotal, o.Discount, o.Shipping,
		o.Total, o.PromoCode, o.Region, addr).Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}

	for _, it := range o.Items {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, it.ID, o.ID, it.ProductID, it.ProductName, it.Quantity, it.Price); err != nil {
			return err
		}
	}
	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o      Order
		status string
		addr   []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.GuestID, &o.Email, &status, &o.Subtotal, &o.Discount,
		&o.Shipping, &o.Total, &o.PromoCode, &o.Region, &addr, &o.PaymentProvider, &o.PaymentRef,
		&o.TrackingNumber, &o.ShippedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = Status(status)
	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode shipping address: %w", err)
		}
	}
	return &o, nil
}

func (r *PGRepo) getOne(ctx context.Context, query string, args ...any) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *PGRepo) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepo) FindByPaymentRefForUpdate(ctx context.Context, provider, ref string) (*Order, error) {
	return r.getOne(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE payment_provider = $1 AND payment_ref = $2
		FOR UPDATE
	`, provider, ref)
}

func (r *PGRepo) items(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price
		FROM order_items WHERE order_id = $1
		ORDER BY product_id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// List returns orders without items, newest first. An empty UserID lists all.
func (r *PGRepo) List(ctx context.Context, q ListQuery) ([]Order, error) {
	q = q.Normalize()
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status::text = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4
	`, q.UserID, string(q.Status), q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateStatus(ctx context.Context, ch StatusChange) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET status = $3,
		    tracking_number = CASE WHEN $3 = 'shipped' AND $4 <> '' THEN $4 ELSE tracking_number END,
		    shipped_at      = CASE WHEN $3 = 'shipped' THEN $5 ELSE shipped_at END,
		    delivered_at    = CASE WHEN $3 = 'delivered' THEN $5 ELSE delivered_at END,
		    updated_at = $5
		WHERE id = $1 AND status = $2
	`, ch.OrderID, string(ch.From), string(ch.To), ch.TrackingNumber, ch.At)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *PGRepo) SetPaymentRef(ctx context.Context, id, provider, ref string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET payment_provider = $2, payment_ref = $3, updated_at = NOW()
		WHERE id = $1
	`, id, provider, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
