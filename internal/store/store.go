// Package store groups the repositories behind one transaction boundary.
// Every multi-step write (reserve + insert, release + status change,
// event record + transition) runs inside a single WithinTx call.
package store

import (
	"context"

	"github.com/MikeMC777/ordenes-checkout/internal/customer"
	"github.com/MikeMC777/ordenes-checkout/internal/order"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/promo"
)

type Products interface {
	product.Repository
	product.Ledger
}

// Tx exposes repositories bound to one transaction.
type Tx interface {
	Products() Products
	Promos() promo.Repository
	Orders() order.Repository
	Customers() customer.Repository
	Events() payment.EventRepository
}

// Manager commits when fn returns nil and rolls back otherwise.
type Manager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
