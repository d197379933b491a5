package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeMC777/ordenes-checkout/internal/customer"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/promo"
)

type Postgres struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgres bounds every transaction by timeout so a stuck row lock cannot
// hold a connection forever.
func NewPostgres(pool *pgxpool.Pool, timeout time.Duration) *Postgres {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Postgres{pool: pool, timeout: timeout}
}

func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // no-op after commit

	if err := fn(ctx, pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct{ tx pgx.Tx }

func (t pgTx) Products() Products              { return product.NewPGRepo(t.tx) }
func (t pgTx) Promos() promo.Repository        { return promo.NewPGRepo(t.tx) }
func (t pgTx) Orders() order.Repository        { return order.NewPGRepo(t.tx) }
func (t pgTx) Customers() customer.Repository  { return customer.NewPGRepo(t.tx) }
func (t pgTx) Events() payment.EventRepository { return payment.NewPGEventRepo(t.tx) }
