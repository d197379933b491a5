// Package notify sends transactional order emails off the request path.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/order"
)

var ErrClosed = errors.New("notify: dispatcher closed")

type Message struct {
	Kind    order.Notification
	OrderID string
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// Dispatcher renders messages and hands them to a fixed pool of workers.
// Enqueueing never blocks: a full queue drops the message with a warning.
type Dispatcher struct {
	mailer Mailer
	log    *zap.Logger
	queue  chan Message

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(mailer Mailer, log *zap.Logger, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 128
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{mailer: mailer, log: log.Named("notify"), queue: make(chan Message, queueSize)}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for m := range d.queue {
		if err := d.mailer.Send(context.Background(), m); err != nil {
			d.log.Warn("notification failed",
				zap.String("kind", string(m.Kind)),
				zap.String("order_id", m.OrderID),
				zap.Error(err))
			continue
		}
		d.log.Debug("notification sent", zap.String("kind", string(m.Kind)), zap.String("order_id", m.OrderID))
	}
}

// Notify queues the email for kind. It is safe to call after Close.
func (d *Dispatcher) Notify(kind order.Notification, o order.Order) {
	if kind == order.NotifyNone {
		return
	}
	msg, err := Render(kind, o)
	if err != nil {
		d.log.Warn("notification not rendered", zap.String("order_id", o.ID), zap.Error(err))
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("notification dropped", zap.String("order_id", o.ID), zap.Error(ErrClosed))
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.log.Warn("notification queue full, dropping", zap.String("kind", string(kind)), zap.String("order_id", o.ID))
	}
}

// Close stops accepting messages and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Render builds the plain-text email for kind.
func Render(kind order.Notification, o order.Order) (Message, error) {
	if o.Email == "" {
		return Message{}, fmt.Errorf("order %s has no email", o.ID)
	}
	name := strings.TrimSpace(o.ShippingAddress.FirstName)
	if name == "" {
		name = "there"
	}
	short := o.ID
	if len(short) > 8 {
		short = short[:8]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	msg := Message{Kind: kind, OrderID: o.ID, To: o.Email}
	switch kind {
	case order.NotifyConfirmed:
		msg.Subject = fmt.Sprintf("Order confirmed #%s", short)
		b.WriteString("Thank you for your order. Your payment was received.\n\n")
		for _, it := range o.Items {
			fmt.Fprintf(&b, "  %d x %s  %s\n", it.Quantity, it.ProductName, it.Price.StringFixed(2))
		}
		fmt.Fprintf(&b, "\nSubtotal: %s\n", o.Subtotal.StringFixed(2))
		if o.Discount.IsPositive() {
			fmt.Fprintf(&b, "Discount (%s): -%s\n", o.PromoCode, o.Discount.StringFixed(2))
		}
		fmt.Fprintf(&b, "Shipping: %s\nTotal: %s\n", o.Shipping.StringFixed(2), o.Total.StringFixed(2))
	case order.NotifyShipped:
		msg.Subject = fmt.Sprintf("Your order #%s has shipped", short)
		b.WriteString("Your order is on its way.\n")
		if o.TrackingNumber != nil && *o.TrackingNumber != "" {
			fmt.Fprintf(&b, "Tracking number: %s\n", *o.TrackingNumber)
		}
	case order.NotifyDelivered:
		msg.Subject = fmt.Sprintf("Your order #%s was delivered", short)
		b.WriteString("Your order has been delivered. We hope you enjoy it.\n")
	default:
		return Message{}, fmt.Errorf("unknown notification %q", kind)
	}
	msg.Body = b.String()
	return msg, nil
}
