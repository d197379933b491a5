package product

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("product not found")
	ErrInactive = errors.New("product inactive")
)

// InsufficientStockError carries what the UI needs to offer a smaller quantity.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

// UnavailableError wraps ErrNotFound or ErrInactive with the offending id.
type UnavailableError struct {
	ProductID int64
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product %d unavailable: %v", e.ProductID, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
