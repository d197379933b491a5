// Package promo reads the promo-code table. Checkout never writes it.
package promo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/ordenes-checkout/internal/db"
)

var ErrNotFound = errors.New("promo code not found")

type Promo struct {
	Code         string           `json:"code"`
	Description  string           `json:"description"`
	DiscountRate decimal.Decimal  `json:"discountRate"`
	Active       bool             `json:"-"`
	ExpiresAt    *time.Time       `json:"expiresAt,omitempty"`
	MinPurchase  *decimal.Decimal `json:"minPurchase,omitempty"`
	MaxDiscount  *decimal.Decimal `json:"maxDiscount,omitempty"`
}

// Expired reports whether the promo's expiry lies before now.
func (p Promo) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// NormalizeCode is the lookup key form: trimmed and upper-cased.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type Repository interface {
	Get(ctx context.Context, code string) (*Promo, error)
	ListActive(ctx context.Context, now time.Time) ([]Promo, error)
}

type PGRepo struct{ db db.DBTX }

func NewPGRepo(conn db.DBTX) *PGRepo { return &PGRepo{db: conn} }

const promoColumns = `code, description, discount_rate, active, expires_at, min_purchase, max_discount`

func scanPromo(row pgx.Row) (*Promo, error) {
	var (
		p           Promo
		minPurchase decimal.NullDecimal
		maxDiscount decimal.NullDecimal
	)
	if err := row.Scan(&p.Code, &p.Description, &p.DiscountRate, &p.Active, &p.ExpiresAt, &minPurchase, &maxDiscount); err != nil {
		return nil, err
	}
	if minPurchase.Valid {
		p.MinPurchase = &minPurchase.Decimal
	}
	if maxDiscount.Valid {
		p.MaxDiscount = &maxDiscount.Decimal
	}
	return &p, nil
}

func (r *PGRepo) Get(ctx context.Context, code string) (*Promo, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrNotFound
	}
	p, err := scanPromo(r.db.QueryRow(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *PGRepo) ListActive(ctx context.Context, now time.Time) ([]Promo, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+promoColumns+`
		FROM promo_codes
		WHERE active AND (expires_at IS NULL OR expires_at >= $1)
		ORDER BY code
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Promo
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
