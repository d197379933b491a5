// Package product provides catalog reads and the stock ledger over Postgres.
package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeMC777/ordenes-checkout/internal/db"
)

type Repository interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]Product, error)
}

// Ledger is the only writer of stock_quantity.
type Ledger interface {
	Reserve(ctx context.Context, lines []Line) ([]Reserved, error)
	Release(ctx context.Context, lines []Line) error
}

// PGRepo implements Repository and Ledger. Bind it to a pgx.Tx so the
// reservation commits or rolls back together with the order rows.
type PGRepo struct{ db db.DBTX }

func NewPGRepo(conn db.DBTX) *PGRepo { return &PGRepo{db: conn} }

func (r *PGRepo) GetMany(ctx context.Context, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, name, price, stock_quantity, is_active, created_at, updated_at
		FROM products WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// Reserve decrements stock with one conditional UPDATE per product. Row locks
// taken by the UPDATE serialize concurrent checkouts of the same product; the
// WHERE clause is re-evaluated against the committed row, so the last unit can
// only be taken once.
func (r *PGRepo) Reserve(ctx context.Context, lines []Line) ([]Reserved, error) {
	merged := MergeLines(lines)
	out := make([]Reserved, 0, len(merged))
	for _, l := range merged {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("reserve product %d: quantity must be positive", l.ProductID)
		}
		res := Reserved{ProductID: l.ProductID, Quantity: l.Quantity}
		err := r.db.QueryRow(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $2, updated_at = NOW()
			WHERE id = $1 AND is_active AND stock_quantity >= $2
			RETURNING name, price, stock_quantity
		`, l.ProductID, l.Quantity).Scan(&res.Name, &res.UnitPrice, &res.Remaining)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classify(ctx, l)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// classify explains why the conditional decrement matched no row.
func (r *PGRepo) classify(ctx context.Context, l Line) error {
	var (
		name   string
		stock  int
		active bool
	)
	err := r.db.QueryRow(ctx, `
		SELECT name, stock_quantity, is_active FROM products WHERE id = $1
	`, l.ProductID).Scan(&name, &stock, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return &UnavailableError{ProductID: l.ProductID, Err: ErrNotFound}
	}
	if err != nil {
		return err
	}
	if !active {
		return &UnavailableError{ProductID: l.ProductID, Err: ErrInactive}
	}
	return &InsufficientStockError{ProductID: l.ProductID, Name: name, Available: stock, Requested: l.Quantity}
}

// Release credits stock back. Callers gate it on a cancelling status
// transition so it happens once per order.
func (r *PGRepo) Release(ctx context.Context, lines []Line) error {
	for _, l := range MergeLines(lines) {
		tag, err := r.db.Exec(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity + $2, updated_at = NOW()
			WHERE id = $1
		`, l.ProductID, l.Quantity)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// product rows are never hard-deleted by this service
			return &UnavailableError{ProductID: l.ProductID, Err: ErrNotFound}
		}
	}
	return nil
}
