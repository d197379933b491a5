package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MikeMC777/ordenes-checkout/internal/customer"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/promo"
)

// Memory is an in-process Manager with the same contract as Postgres:
// transactions are serialized and a failed fn leaves no trace. It backs
// STORE_DRIVER=memory and the service tests.
type Memory struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time
}

type memState struct {
	products map[int64]product.Product
	promos   map[string]promo.Promo
	orders   map[string]*order.Order
	guests   map[string]customer.Guest
	events   map[string]payment.Event
	seq      int64
}

func NewMemory() *Memory {
	return &Memory{
		state: memState{
			products: map[int64]product.Product{},
			promos:   map[string]promo.Promo{},
			orders:   map[string]*order.Order{},
			guests:   map[string]customer.Guest{},
			events:   map[string]payment.Event{},
		},
		now: time.Now,
	}
}

func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := m.state.clone()
	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// PutProduct seeds or replaces a catalog row.
func (m *Memory) PutProduct(p product.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}
	p.UpdatedAt = m.now()
	m.state.products[p.ID] = p
}

func (m *Memory) PutPromo(p promo.Promo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Code = promo.NormalizeCode(p.Code)
	m.state.promos[p.Code] = p
}

// Product returns the current row, for assertions.
func (m *Memory) Product(id int64) (product.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.products[id]
	return p, ok
}

func (m *Memory) GuestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.guests)
}

func (s memState) clone() memState {
	out := memState{
		products: make(map[int64]product.Product, len(s.products)),
		promos:   make(map[string]promo.Promo, len(s.promos)),
		orders:   make(map[string]*order.Order, len(s.orders)),
		guests:   make(map[string]customer.Guest, len(s.guests)),
		events:   make(map[string]payment.Event, len(s.events)),
		seq:      s.seq,
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.promos {
		out.promos[k] = v
	}
	for k, v := range s.orders {
		out.orders[k] = cloneOrder(v)
	}
	for k, v := range s.guests {
		out.guests[k] = v
	}
	for k, v := range s.events {
		out.events[k] = v
	}
	return out
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = append([]order.Item(nil), o.Items...)
	c.UserID = cloneStr(o.UserID)
	c.GuestID = cloneStr(o.GuestID)
	c.PaymentProvider = cloneStr(o.PaymentProvider)
	c.PaymentRef = cloneStr(o.PaymentRef)
	c.TrackingNumber = cloneStr(o.TrackingNumber)
	c.ShippedAt = cloneTime(o.ShippedAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	return &c
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// memTx is only used while Memory.mu is held.
type memTx struct{ m *Memory }

func (t *memTx) Products() Products              { return memProducts{t} }
func (t *memTx) Promos() promo.Repository        { return memPromos{t} }
func (t *memTx) Orders() order.Repository        { return memOrders{t} }
func (t *memTx) Customers() customer.Repository  { return memCustomers{t} }
func (t *memTx) Events() payment.EventRepository { return memEvents{t} }

type memProducts struct{ t *memTx }

func (r memProducts) GetMany(_ context.Context, ids []int64) (map[int64]product.Product, error) {
	out := make(map[int64]product.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.t.m.state.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r memProducts) Reserve(_ context.Context, lines []product.Line) ([]product.Reserved, error) {
	st := &r.t.m.state
	merged := product.MergeLines(lines)
	out := make([]product.Reserved, 0, len(merged))
	for _, l := range merged {
		p, ok := st.products[l.ProductID]
		switch {
		case !ok:
			return nil, &product.UnavailableError{ProductID: l.ProductID, Err: product.ErrNotFound}
		case !p.IsActive:
			return nil, &product.UnavailableError{ProductID: l.ProductID, Err: product.ErrInactive}
		case l.Quantity <= 0 || p.StockQuantity < l.Quantity:
			return nil, &product.InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.StockQuantity, Requested: l.Quantity}
		}
		p.StockQuantity -= l.Quantity
		p.UpdatedAt = r.t.m.now()
		st.products[p.ID] = p
		out = append(out, product.Reserved{
			ProductID: p.ID, Name: p.Name, UnitPrice: p.Price,
			Quantity: l.Quantity, Remaining: p.StockQuantity,
		})
	}
	return out, nil
}

func (r memProducts) Release(_ context.Context, lines []product.Line) error {
	st := &r.t.m.state
	for _, l := range product.MergeLines(lines) {
		p, ok := st.products[l.ProductID]
		if !ok {
			return &product.UnavailableError{ProductID: l.ProductID, Err: product.ErrNotFound}
		}
		p.StockQuantity += l.Quantity
		p.UpdatedAt = r.t.m.now()
		st.products[p.ID] = p
	}
	return nil
}

type memPromos struct{ t *memTx }

func (r memPromos) Get(_ context.Context, code string) (*promo.Promo, error) {
	p, ok := r.t.m.state.promos[promo.NormalizeCode(code)]
	if !ok {
		return nil, promo.ErrNotFound
	}
	return &p, nil
}

func (r memPromos) ListActive(_ context.Context, now time.Time) ([]promo.Promo, error) {
	var out []promo.Promo
	for _, p := range r.t.m.state.promos {
		if p.Active && !p.Expired(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type memOrders struct{ t *memTx }

func (r memOrders) Create(_ context.Context, o *order.Order) error {
	st := &r.t.m.state
	now := r.t.m.now()
	st.seq++
	// seq keeps List ordering stable when the clock does not advance
	o.CreatedAt = now.Add(time.Duration(st.seq))
	o.UpdatedAt = o.CreatedAt
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	st.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := r.t.m.state.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r memOrders) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memOrders) FindByPaymentRefForUpdate(_ context.Context, provider, ref string) (*order.Order, error) {
	for _, o := range r.t.m.state.orders {
		if o.PaymentProvider != nil && o.PaymentRef != nil && *o.PaymentProvider == provider && *o.PaymentRef == ref {
			return cloneOrder(o), nil
		}
	}
	return nil, order.ErrNotFound
}

func (r memOrders) List(_ context.Context, q order.ListQuery) ([]order.Order, error) {
	q = q.Normalize()
	var all []order.Order
	for _, o := range r.t.m.state.orders {
		if q.UserID != "" && !o.OwnedBy(q.UserID) {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		c := cloneOrder(o)
		c.Items = nil
		all = append(all, *c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if q.Offset >= len(all) {
		return nil, nil
	}
	all = all[q.Offset:]
	if len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

func (r memOrders) UpdateStatus(_ context.Context, ch order.StatusChange) error {
	o, ok := r.t.m.state.orders[ch.OrderID]
	if !ok || o.Status != ch.From {
		return order.ErrStatusConflict
	}
	o.Status = ch.To
	o.UpdatedAt = ch.At
	switch ch.To {
	case order.StatusShipped:
		at := ch.At
		o.ShippedAt = &at
		if ch.TrackingNumber != "" {
			tn := ch.TrackingNumber
			o.TrackingNumber = &tn
		}
	case order.StatusDelivered:
		at := ch.At
		o.DeliveredAt = &at
	}
	return nil
}

func (r memOrders) SetPaymentRef(_ context.Context, id, provider, ref string) error {
	o, ok := r.t.m.state.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentProvider = &provider
	o.PaymentRef = &ref
	o.UpdatedAt = r.t.m.now()
	return nil
}

type memCustomers struct{ t *memTx }

func (r memCustomers) CreateGuest(_ context.Context, g *customer.Guest) error {
	g.CreatedAt = r.t.m.now()
	r.t.m.state.guests[g.ID] = *g
	return nil
}

func (r memCustomers) GetGuest(_ context.Context, id string) (*customer.Guest, error) {
	g, ok := r.t.m.state.guests[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &g, nil
}

type memEvents struct{ t *memTx }

func (r memEvents) Record(_ context.Context, e payment.Event) (bool, error) {
	key := e.Provider + "/" + e.ID
	if _, dup := r.t.m.state.events[key]; dup {
		return false, nil
	}
	r.t.m.state.events[key] = e
	return true, nil
}
