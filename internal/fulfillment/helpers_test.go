package fulfillment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/ordenes-checkout/internal/customer"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/pricing"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/promo"
	"github.com/MikeMC777/ordenes-checkout/internal/store"
)

type sentNotification struct {
	kind    order.Notification
	orderID string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(kind order.Notification, o order.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{kind: kind, orderID: o.ID})
}

func (r *recordingNotifier) count(kind order.Notification) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

// hookStore runs before(n) ahead of the n-th transaction and can fail it.
type hookStore struct {
	store.Manager
	mu     sync.Mutex
	n      int
	before func(n int) error
}

func (h *hookStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	h.mu.Lock()
	h.n++
	n := h.n
	before := h.before
	h.mu.Unlock()
	if before != nil {
		if err := before(n); err != nil {
			return err
		}
	}
	return h.Manager.WithinTx(ctx, fn)
}

type fakeProvider struct {
	name      string
	mu        sync.Mutex
	requests  []payment.SessionRequest
	err       error
	verifyErr error
	next      payment.Event
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CreateSession(_ context.Context, req payment.SessionRequest) (payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return payment.Session{}, f.err
	}
	return payment.Session{ID: "sess_" + req.OrderID[:8], Provider: f.name, RedirectURL: "https://pay.test/" + req.OrderID}, nil
}

func (f *fakeProvider) VerifyWebhook(_ []byte, _ http.Header) error { return f.verifyErr }

func (f *fakeProvider) NormalizeEvent(_ []byte) (payment.Event, error) {
	if f.next.ID == "" {
		return payment.Event{}, payment.ErrMalformed
	}
	return f.next, nil
}

type fixture struct {
	mem      *store.Memory
	hooks    *hookStore
	svc      *Service
	notifier *recordingNotifier
	provider *fakeProvider
	gateway  *CheckoutGateway
	recon    *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	mem.PutProduct(product.Product{ID: 7, Name: "Rooted tee", Price: decimal.RequireFromString("100.00"), StockQuantity: 10, IsActive: true})
	mem.PutProduct(product.Product{ID: 1, Name: "Mug", Price: decimal.RequireFromString("45.50"), StockQuantity: 10, IsActive: true})
	mem.PutProduct(product.Product{ID: 2, Name: "Cap", Price: decimal.RequireFromString("80.00"), StockQuantity: 5, IsActive: true})
	mem.PutProduct(product.Product{ID: 9, Name: "Retired", Price: decimal.RequireFromString("10.00"), StockQuantity: 5, IsActive: false})
	mem.PutPromo(promo.Promo{Code: "ROOTED15", Description: "15% off", DiscountRate: decimal.RequireFromString("0.15"), Active: true})

	hooks := &hookStore{Manager: mem}
	notifier := &recordingNotifier{}
	engine := pricing.NewEngine(pricing.DefaultShippingRules())
	svc := NewService(hooks, engine, WithNotifier(notifier), WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))

	provider := &fakeProvider{name: "stripe"}
	reg, err := payment.NewRegistry("stripe", provider)
	require.NoError(t, err)

	return &fixture{
		mem:      mem,
		hooks:    hooks,
		svc:      svc,
		notifier: notifier,
		provider: provider,
		gateway:  NewCheckoutGateway(svc, reg, CheckoutConfig{Currency: "ZAR", SuccessURL: "https://shop.test/ok?o={ORDER_ID}"}, nil),
		recon:    NewReconciler(svc, reg, nil),
	}
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, ok := f.mem.Product(id)
	require.True(t, ok)
	return p.StockQuantity
}

func address(email string) customer.Address {
	return customer.Address{
		FirstName: "Ana", LastName: "Pérez", Address1: "12 Long Street",
		City: "Cape Town", PostalCode: "8001", Country: "ZA", Email: email,
	}
}

func cart(lines ...product.Line) PlaceOrderInput {
	return PlaceOrderInput{Lines: lines, Region: "domestic", Address: address("a@b.com")}
}

var errBoom = errors.New("connection reset")
