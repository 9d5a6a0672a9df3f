package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/order"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
)

const (
	orderColumns = `id::text, order_number, user_id, idempotency_key, status, payment_method, payment_status,
		payment_reference, shipping_method, promo_code, currency,
		subtotal, shipping_cost, discount, tax, total,
		ship_name, ship_phone, ship_line1, ship_line2, ship_city, ship_province, ship_postal_code, ship_notes,
		created_at, updated_at, confirmed_at, shipped_at, delivered_at, cancelled_at`

	createOrderSQL = `INSERT INTO orders (id, order_number, user_id, idempotency_key, status, payment_method,
		payment_status, payment_reference, shipping_method, promo_code, currency,
		subtotal, shipping_cost, discount, tax, total,
		ship_name, ship_phone, ship_line1, ship_line2, ship_city, ship_province, ship_postal_code, ship_notes,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		$17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByKeySQL = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`

	createItemSQL = `INSERT INTO order_items (id, order_id, position, product_id, variant_id, name, sku,
		size, color, image_url, unit_price, quantity, total_price)
		VALUES ($1, $2, $3, NULLIF($4::text, ''), NULLIF($5::text, ''), $6, $7, $8, $9, $10, $11, $12, $13)`

	deleteItemsSQL = `DELETE FROM order_items WHERE order_id = $1`

	listItemsSQL = `SELECT id::text, order_id::text, COALESCE(product_id, ''), COALESCE(variant_id, ''),
		name, sku, size, color, image_url, unit_price, quantity, total_price
		FROM order_items WHERE order_id = $1 ORDER BY position`

	updateStatusSQL = `UPDATE orders SET status = $3::text, updated_at = $4,
		payment_status = COALESCE(NULLIF($5::text, ''), payment_status),
		payment_reference = COALESCE(NULLIF($6::text, ''), payment_reference),
		confirmed_at = CASE WHEN $3::text = 'confirmed' THEN $4 ELSE confirmed_at END,
		shipped_at = CASE WHEN $3::text = 'shipped' THEN $4 ELSE shipped_at END,
		delivered_at = CASE WHEN $3::text = 'delivered' THEN $4 ELSE delivered_at END,
		cancelled_at = CASE WHEN $3::text IN ('cancelled', 'refunded') THEN $4 ELSE cancelled_at END
		WHERE id = $1 AND status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	setPaymentSQL = `UPDATE orders SET payment_status = $2,
		payment_reference = COALESCE(NULLIF($3::text, ''), payment_reference), updated_at = now()
		WHERE id = $1`

	idempotencyKeyConstraint = "orders_idempotency_key_key"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order row. Items are written separately.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	a := o.Address
	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, o.IdempotencyKey, string(o.Status), string(o.PaymentMethod),
		string(o.PaymentStatus), o.PaymentReference, string(o.ShippingMethod), o.PromoCode, o.Currency,
		o.Subtotal, o.ShippingCost, o.Discount, o.Tax, o.Total,
		a.Name, a.Phone, a.Line1, a.Line2, a.City, a.Province, a.PostalCode, a.Notes,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, idempotencyKeyConstraint) {
			return order.ErrDuplicateKey
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Delete removes an order row together with its items.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteOrderSQL, id); err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	return nil
}

// CreateItems inserts all items of an order in a single transaction.
func (r *OrderRepository) CreateItems(ctx context.Context, orderID string, items []order.Item) error {
	batch := &pgx.Batch{}
	for i, it := range items {
		batch.Queue(createItemSQL,
			it.ID, orderID, i, it.ProductID, it.VariantID, it.Name, it.SKU,
			it.Size, it.Color, it.ImageURL, it.UnitPrice, it.Quantity, it.TotalPrice,
		)
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("creating items of order %q: %w", orderID, err)
	}
	return nil
}

// DeleteItems removes every item of an order.
func (r *OrderRepository) DeleteItems(ctx context.Context, orderID string) error {
	if _, err := r.pool.Exec(ctx, deleteItemsSQL, orderID); err != nil {
		return fmt.Errorf("deleting items of order %q: %w", orderID, err)
	}
	return nil
}

// Get returns an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, order.ErrNotFound
	}
	return r.find(ctx, getOrderSQL, id)
}

// FindByIdempotencyKey returns the order created under key.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return r.find(ctx, getOrderByKeySQL, key)
}

func (r *OrderRepository) find(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	rows, err = r.pool.Query(ctx, listItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", o.ID, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", o.ID, err)
	}
	return &o, nil
}

// UpdateStatus moves an order from u.From to u.To if it is still in u.From.
func (r *OrderRepository) UpdateStatus(ctx context.Context, u order.StatusUpdate) error {
	if _, err := uuid.Parse(u.OrderID); err != nil {
		return order.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, updateStatusSQL,
		u.OrderID, string(u.From), string(u.To), u.At, string(u.PaymentStatus), u.PaymentReference,
	)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", u.OrderID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, u.OrderID).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", u.OrderID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

// SetPayment records payment status and reference.
func (r *OrderRepository) SetPayment(ctx context.Context, id string, status order.PaymentStatus, reference string) error {
	if _, err := uuid.Parse(id); err != nil {
		return order.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, setPaymentSQL, id, string(status), reference)
	if err != nil {
		return fmt.Errorf("setting payment of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                     order.Order
		status, method, payStatus, shipMethod string
	)
	a := &o.Address
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.IdempotencyKey, &status, &method, &payStatus,
		&o.PaymentReference, &shipMethod, &o.PromoCode, &o.Currency,
		&o.Subtotal, &o.ShippingCost, &o.Discount, &o.Tax, &o.Total,
		&a.Name, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.Province, &a.PostalCode, &a.Notes,
		&o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
	)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(payStatus)
	o.ShippingMethod = pricing.ShippingMethod(shipMethod)
	return o, err
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.VariantID,
		&it.Name, &it.SKU, &it.Size, &it.Color, &it.ImageURL, &it.UnitPrice, &it.Quantity, &it.TotalPrice,
	)
	return it, err
}
