package order

import (
	"context"
	"time"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/catalog"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
)

// PaymentMethod selects how the customer pays.
type PaymentMethod string

const (
	// PaymentCard goes through the payment provider.
	PaymentCard PaymentMethod = "card"
	// PaymentCOD is cash on delivery and never touches the provider.
	PaymentCOD PaymentMethod = "cod"
)

// PaymentStatus tracks the money side of an order.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// ParsePaymentMethod validates a client supplied payment method.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentCard, PaymentCOD:
		return m, nil
	default:
		return "", &UnknownPaymentMethodError{Method: s}
	}
}

// Address is a shipping address snapshot. It is copied into the order so
// later edits to the customer's address book never alter history.
type Address struct {
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	Province   string
	PostalCode string
	Notes      string
}

// CartLine is one line of the client-held cart. UnitPrice and Name are what
// the client displayed and are never used for pricing.
type CartLine struct {
	VariantID string
	Quantity  int
	UnitPrice int64
	Name      string
}

// CartSnapshot is the untrusted cart submitted at checkout.
type CartSnapshot struct {
	Lines []CartLine
}

// PricedLine is a cart line resolved against the catalog.
type PricedLine struct {
	Variant   catalog.Variant
	Quantity  int
	UnitPrice int64
}

// Total returns UnitPrice * Quantity.
func (l PricedLine) Total() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// PricedOrder is a cart priced on server-trusted data. It is only ever built
// by the Service.
type PricedOrder struct {
	Lines    []PricedLine
	Shipping pricing.ShippingMethod
	Quote    pricing.Quote
}

// Order is the authoritative transaction record.
type Order struct {
	ID               string
	Number           string
	UserID           string
	IdempotencyKey   string
	Status           Status
	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	PaymentReference string
	ShippingMethod   pricing.ShippingMethod
	PromoCode        string
	Currency         string

	Subtotal     int64
	ShippingCost int64
	Discount     int64
	Tax          int64
	Total        int64

	Address Address
	Items   []Item

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
}

// Item is an immutable line snapshot. ProductID and VariantID may be empty
// once the catalog entry is gone; the captured fields survive.
type Item struct {
	ID         string
	OrderID    string
	ProductID  string
	VariantID  string
	Name       string
	SKU        string
	Size       string
	Color      string
	ImageURL   string
	UnitPrice  int64
	Quantity   int
	TotalPrice int64
}

// StatusUpdate is a conditional status transition: it applies only while the
// stored status still equals From.
type StatusUpdate struct {
	OrderID string
	From    Status
	To      Status
	// PaymentStatus and PaymentReference are left unchanged when empty.
	PaymentStatus    PaymentStatus
	PaymentReference string
	At               time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts the order row without items. It returns ErrDuplicateKey
	// when another order already holds the idempotency key.
	Create(ctx context.Context, o *Order) error
	// Delete removes an order row. Only used to roll back a failed checkout.
	Delete(ctx context.Context, id string) error
	CreateItems(ctx context.Context, orderID string, items []Item) error
	DeleteItems(ctx context.Context, orderID string) error
	// Get returns the order with its items, or ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)
	// FindByIdempotencyKey returns the order with its items, or ErrNotFound.
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	// UpdateStatus applies u, returning ErrStatusConflict when the stored
	// status is no longer u.From and ErrNotFound for an unknown order.
	UpdateStatus(ctx context.Context, u StatusUpdate) error
	// SetPayment records a payment status and reference without touching
	// the order status.
	SetPayment(ctx context.Context, id string, status PaymentStatus, reference string) error
}
