package inventory

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 500
)

// Result reports the outcome of a successful ApplyChange.
type Result struct {
	VariantID     string
	PreviousStock int
	NewStock      int
	// LowStock is set when NewStock is at or below the variant's low-stock
	// threshold.
	LowStock bool
	Event    Event
}

// Ledger validates stock changes and applies them through a Store.
type Ledger struct {
	store   Store
	changes metric.Int64Counter
	now     func() time.Time
}

// NewLedger creates a Ledger that records an "inventory.changes" counter on
// the given meter provider.
func NewLedger(store Store, mp metric.MeterProvider) (*Ledger, error) {
	meter := mp.Meter("inventory")
	changes, err := meter.Int64Counter("inventory.changes",
		metric.WithDescription("Applied stock changes by action"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create inventory.changes counter")
	}
	return &Ledger{
		store:   store,
		changes: changes,
		now:     time.Now,
	}, nil
}

// ApplyChange validates c and applies it atomically.
//
// restock and return add Quantity, sale and damaged subtract it, and
// adjustment sets stock to Quantity. A change that would make stock negative
// fails with *NegativeStockError and leaves no event behind.
func (l *Ledger) ApplyChange(ctx context.Context, c Change) (Result, error) {
	m, err := l.mutation(c)
	if err != nil {
		return Result{}, err
	}

	applied, err := l.store.Apply(ctx, m)
	if err != nil {
		return Result{}, errors.Wrapf(err, "apply %s to variant %s", c.Action, c.VariantID)
	}
	l.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(c.Action))))

	ev := applied.Event
	res := Result{
		VariantID:     ev.VariantID,
		PreviousStock: ev.QuantityBefore,
		NewStock:      ev.QuantityAfter,
		LowStock:      ev.QuantityAfter <= applied.LowStockThreshold,
		Event:         ev,
	}
	if res.LowStock {
		zctx.From(ctx).Warn("Variant stock is low",
			zap.String("variant_id", res.VariantID),
			zap.Int("stock", res.NewStock),
			zap.Int("threshold", applied.LowStockThreshold),
		)
	}
	return res, nil
}

// Events lists the most recent events for a variant, newest first. A
// non-positive limit selects the default page size.
func (l *Ledger) Events(ctx context.Context, variantID string, limit int) ([]Event, error) {
	if variantID == "" {
		return nil, ErrVariantNotFound
	}
	switch {
	case limit <= 0:
		limit = defaultEventsLimit
	case limit > maxEventsLimit:
		limit = maxEventsLimit
	}
	events, err := l.store.Events(ctx, variantID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list events for variant %s", variantID)
	}
	return events, nil
}

func (l *Ledger) mutation(c Change) (Mutation, error) {
	if c.VariantID == "" {
		return Mutation{}, ErrVariantNotFound
	}
	if _, err := ParseAction(string(c.Action)); err != nil {
		return Mutation{}, err
	}

	if c.Quantity > MaxQuantity {
		return Mutation{}, errors.Wrapf(ErrInvalidQuantity, "%s of %d exceeds %d", c.Action, c.Quantity, MaxQuantity)
	}

	m := Mutation{
		EventID:   uuid.NewString(),
		VariantID: c.VariantID,
		Action:    c.Action,
		OrderID:   c.OrderID,
		Notes:     c.Notes,
		At:        l.now().UTC(),
	}
	switch c.Action {
	case ActionAdjustment:
		if c.Quantity < 0 {
			return Mutation{}, errors.Wrapf(ErrInvalidQuantity, "adjustment to %d", c.Quantity)
		}
		m.SetTo = c.Quantity
	case ActionRestock, ActionReturn:
		if c.Quantity <= 0 {
			return Mutation{}, errors.Wrapf(ErrInvalidQuantity, "%s of %d", c.Action, c.Quantity)
		}
		m.Delta = c.Quantity
	case ActionSale, ActionDamaged:
		if c.Quantity <= 0 {
			return Mutation{}, errors.Wrapf(ErrInvalidQuantity, "%s of %d", c.Action, c.Quantity)
		}
		m.Delta = -c.Quantity
	}
	return m, nil
}
