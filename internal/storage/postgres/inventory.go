package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/inventory"
)

const (
	// The guard in WHERE is re-evaluated after the row lock is taken, so
	// concurrent decrements serialize on the row and never oversell.
	moveStockSQL = `UPDATE variants SET stock_quantity = stock_quantity + $2
		WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING stock_quantity, low_stock_threshold`

	lockStockSQL = `SELECT stock_quantity, low_stock_threshold FROM variants WHERE id = $1 FOR UPDATE`

	getStockSQL = `SELECT stock_quantity FROM variants WHERE id = $1`

	setStockSQL = `UPDATE variants SET stock_quantity = $2 WHERE id = $1`

	insertEventSQL = `INSERT INTO inventory_events
		(id, variant_id, action, quantity_change, quantity_before, quantity_after, order_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	listEventsSQL = `SELECT id::text, variant_id, action, quantity_change, quantity_before, quantity_after,
		order_id, notes, created_at
		FROM inventory_events WHERE variant_id = $1
		ORDER BY seq DESC LIMIT $2`
)

var _ inventory.Store = (*InventoryStore)(nil)

// InventoryStore implements inventory.Store backed by PostgreSQL. Stock and
// the event log are written in one transaction.
type InventoryStore struct {
	pool *pgxpool.Pool
}

// NewInventoryStore returns an InventoryStore that uses the given pool.
func NewInventoryStore(pool *pgxpool.Pool) *InventoryStore {
	return &InventoryStore{pool: pool}
}

// Apply performs a stock mutation and appends its event.
func (s *InventoryStore) Apply(ctx context.Context, m inventory.Mutation) (inventory.Applied, error) {
	var applied inventory.Applied
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			before, after, threshold int
			err                      error
		)
		if m.Absolute() {
			before, after, threshold, err = setStock(ctx, tx, m)
		} else {
			before, after, threshold, err = moveStock(ctx, tx, m)
		}
		if err != nil {
			return err
		}

		ev := inventory.Event{
			ID:             m.EventID,
			VariantID:      m.VariantID,
			Action:         m.Action,
			QuantityChange: after - before,
			QuantityBefore: before,
			QuantityAfter:  after,
			OrderID:        m.OrderID,
			Notes:          m.Notes,
			CreatedAt:      m.At,
		}
		if _, err := tx.Exec(ctx, insertEventSQL,
			ev.ID, ev.VariantID, string(ev.Action), ev.QuantityChange, ev.QuantityBefore, ev.QuantityAfter,
			ev.OrderID, ev.Notes, ev.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting inventory event: %w", err)
		}

		applied = inventory.Applied{Event: ev, LowStockThreshold: threshold}
		return nil
	})
	if err != nil {
		return inventory.Applied{}, err
	}
	return applied, nil
}

func moveStock(ctx context.Context, tx pgx.Tx, m inventory.Mutation) (before, after, threshold int, err error) {
	err = tx.QueryRow(ctx, moveStockSQL, m.VariantID, m.Delta).Scan(&after, &threshold)
	if err == nil {
		return after - m.Delta, after, threshold, nil
	}
	if isOutOfRange(err) {
		return 0, 0, 0, errors.Wrapf(inventory.ErrInvalidQuantity, "stock of %q out of range", m.VariantID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, 0, fmt.Errorf("moving stock of %q: %w", m.VariantID, err)
	}

	// No row updated: either the variant is missing or the guard failed.
	var available int
	if err := tx.QueryRow(ctx, getStockSQL, m.VariantID).Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, 0, inventory.ErrVariantNotFound
		}
		return 0, 0, 0, fmt.Errorf("reading stock of %q: %w", m.VariantID, err)
	}
	return 0, 0, 0, &inventory.NegativeStockError{
		VariantID: m.VariantID,
		Available: available,
		Requested: -m.Delta,
	}
}

func setStock(ctx context.Context, tx pgx.Tx, m inventory.Mutation) (before, after, threshold int, err error) {
	if err := tx.QueryRow(ctx, lockStockSQL, m.VariantID).Scan(&before, &threshold); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, 0, inventory.ErrVariantNotFound
		}
		return 0, 0, 0, fmt.Errorf("locking stock of %q: %w", m.VariantID, err)
	}
	if m.SetTo < 0 {
		return 0, 0, 0, &inventory.NegativeStockError{VariantID: m.VariantID, Available: before, Requested: before - m.SetTo}
	}
	if _, err := tx.Exec(ctx, setStockSQL, m.VariantID, m.SetTo); err != nil {
		return 0, 0, 0, fmt.Errorf("setting stock of %q: %w", m.VariantID, err)
	}
	return before, m.SetTo, threshold, nil
}

// Events returns up to limit events for a variant, newest first.
func (s *InventoryStore) Events(ctx context.Context, variantID string, limit int) ([]inventory.Event, error) {
	rows, err := s.pool.Query(ctx, listEventsSQL, variantID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing inventory events of %q: %w", variantID, err)
	}
	return pgx.CollectRows(rows, scanEvent)
}

func scanEvent(row pgx.CollectableRow) (inventory.Event, error) {
	var (
		ev     inventory.Event
		action string
	)
	err := row.Scan(
		&ev.ID, &ev.VariantID, &action, &ev.QuantityChange, &ev.QuantityBefore, &ev.QuantityAfter,
		&ev.OrderID, &ev.Notes, &ev.CreatedAt,
	)
	ev.Action = inventory.Action(action)
	return ev, err
}
