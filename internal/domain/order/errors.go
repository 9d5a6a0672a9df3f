package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
)

// Sentinel errors for order placement and lifecycle.
var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrNotFound       = errors.New("order not found")
	ErrDuplicateKey   = errors.New("idempotency key already used")
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// InvalidQuantityError indicates a cart line quantity outside
// 1..pricing.MaxQuantity.
type InvalidQuantityError struct {
	VariantID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for variant %s (got %d)",
		pricing.MaxQuantity, e.VariantID, e.Quantity)
}

// InvalidAddressError names the first missing required address field.
type InvalidAddressError struct {
	Field string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("shipping address: %s is required", e.Field)
}

// UnknownVariantError indicates a cart line references a variant the catalog
// does not know.
type UnknownVariantError struct {
	VariantID string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("variant %s not found", e.VariantID)
}

// VariantUnavailableError indicates the variant exists but is no longer sold.
type VariantUnavailableError struct {
	VariantID string
}

func (e *VariantUnavailableError) Error() string {
	return fmt.Sprintf("variant %s is no longer available", e.VariantID)
}

// InsufficientStockError names the variant whose decrement failed.
type InsufficientStockError struct {
	VariantID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("this item is no longer available in the requested quantity: variant %s has %d, requested %d",
		e.VariantID, e.Available, e.Requested)
}

// UnknownPaymentMethodError indicates a payment method other than card or cod.
type UnknownPaymentMethodError struct {
	Method string
}

func (e *UnknownPaymentMethodError) Error() string {
	return fmt.Sprintf("unknown payment method %q", e.Method)
}

// InvalidTransitionError indicates a status change the state machine forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// PersistenceError wraps an unexpected store failure. These are retryable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PaymentProviderError reports that the provider could not create a payment
// intent. The order itself was placed and stays pending.
type PaymentProviderError struct {
	Err error
}

func (e *PaymentProviderError) Error() string {
	return fmt.Sprintf("payment provider: %v", e.Err)
}

func (e *PaymentProviderError) Unwrap() error {
	return e.Err
}
