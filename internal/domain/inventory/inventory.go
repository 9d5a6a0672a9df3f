// Package inventory is the sole authority for variant stock. Every mutation
// goes through Ledger.ApplyChange, which never lets stock drop below zero and
// appends exactly one audit event per change in the same store transaction.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Action is the kind of a stock change.
type Action string

const (
	ActionRestock    Action = "restock"
	ActionSale       Action = "sale"
	ActionReturn     Action = "return"
	ActionAdjustment Action = "adjustment"
	ActionDamaged    Action = "damaged"
)

// MaxQuantity bounds the quantity of a single change and the absolute stock an
// adjustment may set. Stock is stored as a 32-bit integer.
const MaxQuantity = 1_000_000

// Sentinel errors for ledger validation.
var (
	ErrUnknownAction   = errors.New("unknown inventory action")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrVariantNotFound = errors.New("variant not found")
	ErrNegativeStock   = errors.New("stock would go negative")
)

// NegativeStockError is returned when a change would take a variant's stock
// below zero. The change is rejected, never clamped.
type NegativeStockError struct {
	VariantID string
	Available int
	Requested int
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("variant %s: requested %d, only %d in stock", e.VariantID, e.Requested, e.Available)
}

// Is reports ErrNegativeStock as a match.
func (e *NegativeStockError) Is(target error) bool {
	return target == ErrNegativeStock
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionRestock, ActionSale, ActionReturn, ActionAdjustment, ActionDamaged:
		return a, nil
	default:
		return "", errors.Wrapf(ErrUnknownAction, "%q", s)
	}
}

// Event is an immutable record of one stock change.
// QuantityAfter always equals QuantityBefore + QuantityChange.
type Event struct {
	ID             string
	VariantID      string
	Action         Action
	QuantityChange int
	QuantityBefore int
	QuantityAfter  int
	OrderID        string
	Notes          string
	CreatedAt      time.Time
}

// Change is a request to mutate a variant's stock. Quantity is a magnitude
// for delta actions and the absolute new stock for ActionAdjustment.
type Change struct {
	VariantID string
	Action    Action
	Quantity  int
	OrderID   string
	Notes     string
}

// Mutation is a validated Change as handed to the Store.
type Mutation struct {
	EventID   string
	VariantID string
	Action    Action
	// Delta is the signed change for every action except ActionAdjustment.
	Delta int
	// SetTo is the absolute stock for ActionAdjustment.
	SetTo   int
	OrderID string
	Notes   string
	At      time.Time
}

// Absolute reports whether the mutation sets stock instead of moving it.
func (m Mutation) Absolute() bool {
	return m.Action == ActionAdjustment
}

// Applied is what a Store reports after a successful mutation.
type Applied struct {
	Event             Event
	LowStockThreshold int
}

// Store persists stock and its event log.
type Store interface {
	// Apply performs m atomically against the live row and appends its event
	// in the same transaction. It returns *NegativeStockError when the
	// resulting stock would be negative and ErrVariantNotFound for an unknown
	// variant.
	Apply(ctx context.Context, m Mutation) (Applied, error)
	// Events returns up to limit events for a variant, newest first.
	Events(ctx context.Context, variantID string, limit int) ([]Event, error)
}
