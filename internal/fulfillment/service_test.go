package fulfillment

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/pricing"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
)

var (
	alice = Caller{UserID: "user-alice", Email: "alice@example.com"}
	bob   = Caller{UserID: "user-bob", Email: "bob@example.com"}
	admin = Caller{UserID: "user-admin", Admin: true}
)

func TestPlaceOrderPricesServerSide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.PlaceOrder(ctx, Caller{}, cart(product.Line{ProductID: 7, Quantity: 3}))
	require.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "300.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "0.00", o.Shipping.StringFixed(2))
	assert.Equal(t, "300.00", o.Total.StringFixed(2))
	require.Len(t, o.Items, 1)
	assert.Equal(t, "100.00", o.Items[0].Price.StringFixed(2))
	assert.Equal(t, "Rooted tee", o.Items[0].ProductName)
	assert.Equal(t, 7, f.stock(t, 7))
	assert.NotNil(t, o.GuestID)
	assert.Nil(t, o.UserID)
}

func TestPlaceOrderAppliesPromoAndShipping(t *testing.T) {
	f := newFixture(t)
	in := cart(product.Line{ProductID: 1, Quantity: 2})
	in.PromoCode = " rooted15 "

	o, err := f.svc.PlaceOrder(context.Background(), alice, in)
	require.NoError(t, err)
	// 91.00 - 13.65 + 60.00
	assert.Equal(t, "91.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "13.65", o.Discount.StringFixed(2))
	assert.Equal(t, "60.00", o.Shipping.StringFixed(2))
	assert.Equal(t, "137.35", o.Total.StringFixed(2))
	assert.Equal(t, "ROOTED15", o.PromoCode)
	require.NotNil(t, o.UserID)
	assert.Equal(t, "user-alice", *o.UserID)
}

func TestPlaceOrderUnknownPromoIsSilent(t *testing.T) {
	f := newFixture(t)
	in := cart(product.Line{ProductID: 1, Quantity: 1})
	in.PromoCode = "NOPE"
	o, err := f.svc.PlaceOrder(context.Background(), Caller{}, in)
	require.NoError(t, err)
	assert.True(t, o.Discount.IsZero())
	assert.Empty(t, o.PromoCode)
}

func TestPlaceOrderInsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PlaceOrder(context.Background(), Caller{},
		cart(product.Line{ProductID: 1, Quantity: 2}, product.Line{ProductID: 2, Quantity: 6}))

	var ise *product.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(2), ise.ProductID)
	assert.Equal(t, 5, ise.Available)
	assert.Equal(t, 6, ise.Requested)
	assert.Equal(t, 10, f.stock(t, 1))
	assert.Equal(t, 0, f.mem.GuestCount(), "guest row must roll back with the order")
}

func TestPlaceOrderRejectsUnavailableProducts(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PlaceOrder(context.Background(), Caller{}, cart(product.Line{ProductID: 9, Quantity: 1}))
	assert.ErrorIs(t, err, product.ErrInactive)

	_, err = f.svc.PlaceOrder(context.Background(), Caller{}, cart(product.Line{ProductID: 404, Quantity: 1}))
	assert.ErrorIs(t, err, product.ErrNotFound)

	_, err = f.svc.PlaceOrder(context.Background(), Caller{}, PlaceOrderInput{Region: "domestic"})
	assert.ErrorIs(t, err, ErrEmptyCart)

	in := cart(product.Line{ProductID: 1, Quantity: 1})
	in.Region = "mars"
	_, err = f.svc.PlaceOrder(context.Background(), Caller{}, in)
	assert.ErrorIs(t, err, pricing.ErrUnknownRegion)
}

func TestNoOversellUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	const attempts = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(context.Background(), Caller{}, cart(product.Line{ProductID: 2, Quantity: 1}))
			mu.Lock()
			defer mu.Unlock()
			var ise *product.InsufficientStockError
			switch {
			case err == nil:
				ok++
			case assert.ErrorAs(t, err, &ise):
				fail++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, ok)
	assert.Equal(t, attempts-5, fail)
	assert.Equal(t, 0, f.stock(t, 2))
}

func TestCancelRestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := cart(product.Line{ProductID: 1, Quantity: 2}, product.Line{ProductID: 2, Quantity: 1})
	o, err := f.svc.PlaceOrder(ctx, alice, in)
	require.NoError(t, err)
	assert.Equal(t, 8, f.stock(t, 1))
	assert.Equal(t, 4, f.stock(t, 2))

	got, err := f.svc.Cancel(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, 10, f.stock(t, 1))
	assert.Equal(t, 5, f.stock(t, 2))

	again, err := f.svc.Cancel(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, again.Status)
	assert.Equal(t, 10, f.stock(t, 1))
	assert.Equal(t, 5, f.stock(t, 2))
}

func TestCancelOwnershipAndPaidOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.PlaceOrder(ctx, alice, cart(product.Line{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, bob, o.ID)
	assert.ErrorIs(t, err, order.ErrNotFound)
	_, err = f.svc.Cancel(ctx, Caller{}, o.ID)
	assert.ErrorIs(t, err, order.ErrNotFound)

	_, err = f.svc.UpdateStatus(ctx, admin, o.ID, order.StatusPaid, "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.count(order.NotifyConfirmed))

	_, err = f.svc.Cancel(ctx, alice, o.ID)
	assert.ErrorIs(t, err, order.ErrForbiddenTransition)
	assert.Equal(t, 9, f.stock(t, 1))

	got, err := f.svc.Cancel(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, 10, f.stock(t, 1))
}

func TestAdminLifecycleAndInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.PlaceOrder(ctx, alice, cart(product.Line{ProductID: 7, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, alice, o.ID, order.StatusPaid, "")
	assert.ErrorIs(t, err, order.ErrNotFound, "non-admins must not learn the order exists")

	_, err = f.svc.UpdateStatus(ctx, admin, o.ID, order.StatusShipped, "TRK1")
	var ite *order.InvalidTransitionError
	require.ErrorAs(t, err, &ite)

	_, err = f.svc.UpdateStatus(ctx, admin, o.ID, order.StatusPaid, "")
	require.NoError(t, err)
	shipped, err := f.svc.UpdateStatus(ctx, admin, o.ID, order.StatusShipped, "TRK1")
	require.NoError(t, err)
	require.NotNil(t, shipped.TrackingNumber)
	assert.Equal(t, "TRK1", *shipped.TrackingNumber)
	assert.NotNil(t, shipped.ShippedAt)

	_, err = f.svc.UpdateStatus(ctx, admin, o.ID, order.StatusPending, "")
	require.ErrorAs(t, err, &ite)
	cur, err := f.svc.Get(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, cur.Status)

	_, err = f.svc.UpdateStatus(ctx, admin, o.ID, order.StatusDelivered, "")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, admin, o.ID, order.StatusPaid, "")
	require.ErrorAs(t, err, &ite)

	assert.Equal(t, 1, f.notifier.count(order.NotifyShipped))
	assert.Equal(t, 1, f.notifier.count(order.NotifyDelivered))
	assert.Equal(t, 9, f.stock(t, 7))
}

func TestGuestCheckoutIsNotDeduplicated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.PlaceOrder(ctx, Caller{}, cart(product.Line{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)
	second, err := f.svc.PlaceOrder(ctx, Caller{}, cart(product.Line{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	require.NotNil(t, first.GuestID)
	require.NotNil(t, second.GuestID)
	assert.NotEqual(t, *first.GuestID, *second.GuestID)
	assert.Equal(t, "a@b.com", first.Email)
	assert.Equal(t, 2, f.mem.GuestCount())
}

func TestGetAndListVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine, err := f.svc.PlaceOrder(ctx, alice, cart(product.Line{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)
	_, err = f.svc.PlaceOrder(ctx, bob, cart(product.Line{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, bob, mine.ID)
	assert.ErrorIs(t, err, order.ErrNotFound)
	_, err = f.svc.Get(ctx, alice, "not-a-uuid")
	assert.ErrorIs(t, err, order.ErrNotFound)
	got, err := f.svc.Get(ctx, alice, mine.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)

	list, err := f.svc.List(ctx, alice, order.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.svc.List(ctx, admin, order.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = f.svc.List(ctx, admin, order.ListQuery{Status: order.StatusPaid})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestValidatePromo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.svc.ValidatePromo(ctx, "rooted15", decimal.RequireFromString("200"))
	require.NoError(t, err)
	assert.Equal(t, "30.00", v.Discount.StringFixed(2))

	_, err = f.svc.ValidatePromo(ctx, "bogus", decimal.RequireFromString("200"))
	var rej *pricing.PromoRejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, pricing.RejectInvalid, rej.Reason)
	assert.Equal(t, "BOGUS", rej.Code)

	active, err := f.svc.ActivePromos(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ROOTED15", active[0].Code)
}
