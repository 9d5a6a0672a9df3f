package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/catalog"
)

const getVariantsByIDsSQL = `SELECT v.id, v.product_id, v.sku, v.size, v.color, v.stock_quantity,
		v.low_stock_threshold, v.price_adjustment, v.active,
		p.id, p.name, p.base_price, p.image_url
	FROM variants v JOIN products p ON p.id = v.product_id
	WHERE v.id = ANY($1)`

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetVariants returns variants matching any of the given IDs.
func (r *CatalogRepository) GetVariants(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(
		&v.ID, &v.ProductID, &v.SKU, &v.Size, &v.Color, &v.StockQuantity,
		&v.LowStockThreshold, &v.PriceAdjustment, &v.Active,
		&v.Product.ID, &v.Product.Name, &v.Product.BasePrice, &v.Product.ImageURL,
	)
	return v, err
}
