// Package catalog holds the read side of products and their variants as the
// checkout core sees them.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested variant does not exist.
var ErrNotFound = errors.New("variant not found")

// Product is the parent of one or more variants.
type Product struct {
	ID        string
	Name      string
	BasePrice int64
	ImageURL  string
}

// Variant is a purchasable size/color combination of a product. Its stock is
// owned by the inventory ledger; the value here is a point-in-time read.
type Variant struct {
	ID                string
	ProductID         string
	SKU               string
	Size              string
	Color             string
	StockQuantity     int
	LowStockThreshold int
	PriceAdjustment   int64
	Active            bool
	Product           Product
}

// UnitPrice returns the server-trusted price of one unit.
func (v Variant) UnitPrice() int64 {
	return v.Product.BasePrice + v.PriceAdjustment
}

// Repository defines read operations for catalog variants.
type Repository interface {
	// GetVariants returns the variants matching ids. Missing ids are omitted
	// from the result rather than reported as an error.
	GetVariants(ctx context.Context, ids []string) ([]Variant, error)
}
