package product

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog row as seen by checkout. Price is authoritative;
// StockQuantity only changes through the Ledger.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Line is a requested (product, quantity) pair.
type Line struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Reserved describes a successful decrement.
type Reserved struct {
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Remaining int
}
