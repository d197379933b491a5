package customer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeMC777/ordenes-checkout/internal/db"
)

var ErrNotFound = errors.New("guest customer not found")

type Repository interface {
	CreateGuest(ctx context.Context, g *Guest) error
	GetGuest(ctx context.Context, id string) (*Guest, error)
}

type PGRepo struct{ db db.DBTX }

func NewPGRepo(conn db.DBTX) *PGRepo { return &PGRepo{db: conn} }

func (r *PGRepo) CreateGuest(ctx context.Context, g *Guest) error {
	addr, err := json.Marshal(g.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode guest address: %w", err)
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO guest_customers (id, email, first_name, last_name, phone, shipping_address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())
		RETURNING created_at
	`, g.ID, g.Email, g.FirstName, g.LastName, g.Phone, addr).Scan(&g.CreatedAt)
}

func (r *PGRepo) GetGuest(ctx context.Context, id string) (*Guest, error) {
	var (
		g    Guest
		addr []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, phone, shipping_address, created_at
		FROM guest_customers WHERE id = $1
	`, id).Scan(&g.ID, &g.Email, &g.FirstName, &g.LastName, &g.Phone, &addr, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &g.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode guest address: %w", err)
		}
	}
	return &g, nil
}
