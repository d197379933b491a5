//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MikeMC777/ordenes-checkout/internal/customer"
	"github.com/MikeMC777/ordenes-checkout/internal/db"
	"github.com/MikeMC777/ordenes-checkout/internal/fulfillment"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/pricing"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/store"
)

// startPostgres runs a throwaway Postgres and returns a migrated pool.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "checkout",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/checkout?sslmode=disable", host, port.Port())
	pool, err := db.Connect(ctx, dsn, 30)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))
	// migrations are idempotent
	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

func insertProduct(t *testing.T, pool *pgxpool.Pool, name, price string, stock int) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO products (name, price, stock_quantity) VALUES ($1, $2::numeric, $3) RETURNING id`,
		name, price, stock).Scan(&id)
	require.NoError(t, err)
	return id
}

func stockOf(t *testing.T, pool *pgxpool.Pool, id int64) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT stock_quantity FROM products WHERE id = $1`, id).Scan(&n))
	return n
}

func TestPostgresConcurrentReservationsNeverOversell(t *testing.T) {
	pool := startPostgres(t)
	st := store.NewPostgres(pool, 5*time.Second)
	id := insertProduct(t, pool, "Last few", "99.00", 5)

	const buyers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, short int
		unknowns  []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
				_, err := tx.Products().Reserve(ctx, []product.Line{{ProductID: id, Quantity: 1}})
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			var ise *product.InsufficientStockError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &ise):
				short++
			default:
				unknowns = append(unknowns, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unknowns)
	assert.Equal(t, 5, ok)
	assert.Equal(t, buyers-5, short)
	assert.Equal(t, 0, stockOf(t, pool, id))
}

func TestPostgresOrderLifecycle(t *testing.T) {
	pool := startPostgres(t)
	st := store.NewPostgres(pool, 5*time.Second)
	id := insertProduct(t, pool, "Fern", "120.00", 4)
	svc := fulfillment.NewService(st, pricing.NewEngine(pricing.DefaultShippingRules()))
	ctx := context.Background()

	addr := customer.Address{
		FirstName: "Lerato", LastName: "Dlamini", Address1: "3 Main Rd", City: "Durban",
		PostalCode: "4001", Country: "ZA", Email: "Lerato@Example.com",
	}
	placed, err := svc.PlaceOrder(ctx, fulfillment.Caller{}, fulfillment.PlaceOrderInput{
		Lines:     []product.Line{{ProductID: id, Quantity: 3}},
		PromoCode: "rooted15",
		Address:   addr,
	})
	require.NoError(t, err)
	require.NotNil(t, placed.GuestID)
	assert.Equal(t, "lerato@example.com", placed.Email)
	// 360.00 - 54.00 discount, free shipping
	assert.True(t, placed.Total.Equal(decimal.RequireFromString("306.00")), placed.Total.String())
	assert.Equal(t, 1, stockOf(t, pool, id))

	admin := fulfillment.Caller{UserID: "ops", Admin: true}
	got, err := svc.Get(ctx, admin, placed.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Price.Equal(decimal.RequireFromString("120.00")))

	reg, err := payment.NewRegistry("")
	require.NoError(t, err)
	rec := fulfillment.NewReconciler(svc, reg, nil)
	evt := payment.Event{Provider: "stripe", ID: "evt_1", Type: "payment_intent.succeeded", Kind: payment.KindSucceeded, OrderID: placed.ID}
	res, err := rec.Apply(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeApplied, res.Outcome)
	res, err = rec.Apply(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeDuplicate, res.Outcome)

	shipped, err := svc.UpdateStatus(ctx, admin, placed.ID, order.StatusShipped, "TRK-9")
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, shipped.Status)

	_, err = svc.UpdateStatus(ctx, admin, placed.ID, order.StatusCancelled, "")
	var ite *order.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, 1, stockOf(t, pool, id))

	list, err := svc.List(ctx, admin, order.ListQuery{Status: order.StatusShipped}.Normalize())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].TrackingNumber)
	assert.Equal(t, "TRK-9", *list[0].TrackingNumber)
}
