package fulfillment

import "errors"

var (
	// ErrPriceChanged means the catalog moved between two pricing passes of
	// the same checkout. The order is cancelled and the client should re-quote.
	ErrPriceChanged = errors.New("prices changed during checkout")
	// ErrProvider wraps any failure talking to a payment provider.
	ErrProvider  = errors.New("payment provider unavailable")
	ErrEmptyCart = errors.New("cart is empty")
)
