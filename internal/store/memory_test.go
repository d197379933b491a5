package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
)

func seeded() *Memory {
	m := NewMemory()
	m.PutProduct(product.Product{ID: 1, Name: "Mug", Price: decimal.NewFromInt(100), StockQuantity: 3, IsActive: true})
	m.PutProduct(product.Product{ID: 2, Name: "Pot", Price: decimal.NewFromInt(50), StockQuantity: 1, IsActive: true})
	return m
}

func TestMemoryRollsBackOnError(t *testing.T) {
	m := seeded()
	boom := errors.New("boom")

	err := m.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.Products().Reserve(ctx, []product.Line{{ProductID: 1, Quantity: 2}})
		require.NoError(t, err)
		require.NoError(t, tx.Orders().Create(ctx, &order.Order{ID: "o-1", Status: order.StatusPending}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, _ := m.Product(1)
	assert.Equal(t, 3, p.StockQuantity)
	err = m.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.Orders().GetByID(ctx, "o-1")
		return err
	})
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestMemoryReserveIsAllOrNothing(t *testing.T) {
	m := seeded()
	err := m.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.Products().Reserve(ctx, []product.Line{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 2}})
		return err
	})
	var ise *product.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(2), ise.ProductID)
	assert.Equal(t, 1, ise.Available)
	assert.Equal(t, 2, ise.Requested)

	p, _ := m.Product(1)
	assert.Equal(t, 3, p.StockQuantity, "first line must be rolled back")
}

func TestMemoryStatusCompareAndSet(t *testing.T) {
	m := seeded()
	ctx := context.Background()
	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Orders().Create(ctx, &order.Order{ID: "o-1", Status: order.StatusPending})
	}))

	err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Orders().UpdateStatus(ctx, order.StatusChange{OrderID: "o-1", From: order.StatusPaid, To: order.StatusShipped})
	})
	assert.ErrorIs(t, err, order.ErrStatusConflict)

	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Orders().UpdateStatus(ctx, order.StatusChange{OrderID: "o-1", From: order.StatusPending, To: order.StatusPaid})
	}))
}

func TestMemoryEventsDeduplicate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	evt := payment.Event{Provider: "stripe", ID: "evt_1"}
	var first, second bool
	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, tx Tx) (err error) {
		first, err = tx.Events().Record(ctx, evt)
		return err
	}))
	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, tx Tx) (err error) {
		second, err = tx.Events().Record(ctx, evt)
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)
}

func TestMemoryFindByPaymentRef(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Orders().Create(ctx, &order.Order{ID: "o-1", Status: order.StatusPending}); err != nil {
			return err
		}
		return tx.Orders().SetPaymentRef(ctx, "o-1", "yoco", "ch_1")
	}))
	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().FindByPaymentRefForUpdate(ctx, "yoco", "ch_1")
		if err != nil {
			return err
		}
		assert.Equal(t, "o-1", o.ID)
		_, err = tx.Orders().FindByPaymentRefForUpdate(ctx, "stripe", "ch_1")
		assert.ErrorIs(t, err, order.ErrNotFound)
		return nil
	}))
}
