// Package memory is an in-process store for tests and local runs. A single
// mutex serialises every operation, which gives each stock mutation and its
// event append the same atomicity a row lock gives the SQL store.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/auth"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/catalog"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/inventory"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/order"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/promo"
)

var (
	_ catalog.Repository = (*Store)(nil)
	_ inventory.Store    = (*Store)(nil)
	_ order.Repository   = (*Store)(nil)
	_ promo.Repository   = (*Store)(nil)
	_ auth.Repository    = (*Store)(nil)
)

// Store implements every repository interface of the checkout core.
type Store struct {
	mu sync.Mutex

	products map[string]catalog.Product
	variants map[string]catalog.Variant
	events   map[string][]inventory.Event

	orders map[string]order.Order
	items  map[string][]order.Item
	byKey  map[string]string

	promos  []pricing.PromoRule
	apiKeys map[string]auth.APIKey
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		products: make(map[string]catalog.Product),
		variants: make(map[string]catalog.Variant),
		events:   make(map[string][]inventory.Event),
		orders:   make(map[string]order.Order),
		items:    make(map[string][]order.Item),
		byKey:    make(map[string]string),
		apiKeys:  make(map[string]auth.APIKey),
	}
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutVariant inserts or replaces a variant. Its stock is taken as-is and no
// event is recorded; use the ledger for tracked changes.
func (s *Store) PutVariant(v catalog.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ID] = v
}

// PutPromo appends a promo rule.
func (s *Store) PutPromo(r pricing.PromoRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promos = append(s.promos, r)
}

// PutAPIKey stores a key under its hash.
func (s *Store) PutAPIKey(k auth.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[k.KeyHash] = k
}

// Stock returns a variant's current stock.
func (s *Store) Stock(variantID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[variantID]
	return v.StockQuantity, ok
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// ItemCount returns the number of stored order items across all orders.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, items := range s.items {
		n += len(items)
	}
	return n
}

// GetVariants implements catalog.Repository.
func (s *Store) GetVariants(_ context.Context, ids []string) ([]catalog.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]catalog.Variant, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		v, ok := s.variants[id]
		if !ok {
			continue
		}
		v.Product = s.products[v.ProductID]
		out = append(out, v)
	}
	return out, nil
}

// Apply implements inventory.Store.
func (s *Store) Apply(_ context.Context, m inventory.Mutation) (inventory.Applied, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variants[m.VariantID]
	if !ok {
		return inventory.Applied{}, inventory.ErrVariantNotFound
	}

	before := v.StockQuantity
	after := before + m.Delta
	if m.Absolute() {
		after = m.SetTo
	}
	if after < 0 {
		return inventory.Applied{}, &inventory.NegativeStockError{
			VariantID: m.VariantID,
			Available: before,
			Requested: -m.Delta,
		}
	}

	v.StockQuantity = after
	s.variants[m.VariantID] = v

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
	s.events[m.VariantID] = append(s.events[m.VariantID], ev)

	return inventory.Applied{Event: ev, LowStockThreshold: v.LowStockThreshold}, nil
}

// Events implements inventory.Store.
func (s *Store) Events(_ context.Context, variantID string, limit int) ([]inventory.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.variants[variantID]; !ok {
		return nil, inventory.ErrVariantNotFound
	}
	all := s.events[variantID]
	n := min(limit, len(all))
	out := make([]inventory.Event, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// Create implements order.Repository.
func (s *Store) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[o.IdempotencyKey]; ok {
		return order.ErrDuplicateKey
	}
	row := *o
	row.Items = nil
	s.orders[o.ID] = row
	s.byKey[o.IdempotencyKey] = o.ID
	return nil
}

// Delete implements order.Repository.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	delete(s.byKey, o.IdempotencyKey)
	delete(s.orders, id)
	delete(s.items, id)
	return nil
}

// CreateItems implements order.Repository.
func (s *Store) CreateItems(_ context.Context, orderID string, items []order.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return order.ErrNotFound
	}
	s.items[orderID] = append(s.items[orderID], slices.Clone(items)...)
	return nil
}

// DeleteItems implements order.Repository.
func (s *Store) DeleteItems(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, orderID)
	return nil
}

// Get implements order.Repository.
func (s *Store) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

// FindByIdempotencyKey implements order.Repository.
func (s *Store) FindByIdempotencyKey(_ context.Context, key string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, order.ErrNotFound
	}
	return s.load(id)
}

// UpdateStatus implements order.Repository.
func (s *Store) UpdateStatus(_ context.Context, u order.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[u.OrderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != u.From {
		return order.ErrStatusConflict
	}

	at := u.At
	o.Status = u.To
	o.UpdatedAt = at
	if u.PaymentStatus != "" {
		o.PaymentStatus = u.PaymentStatus
	}
	if u.PaymentReference != "" {
		o.PaymentReference = u.PaymentReference
	}
	switch u.To {
	case order.StatusConfirmed:
		o.ConfirmedAt = &at
	case order.StatusShipped:
		o.ShippedAt = &at
	case order.StatusDelivered:
		o.DeliveredAt = &at
	case order.StatusCancelled, order.StatusRefunded:
		o.CancelledAt = &at
	}
	s.orders[u.OrderID] = o
	return nil
}

// SetPayment implements order.Repository.
func (s *Store) SetPayment(_ context.Context, id string, status order.PaymentStatus, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentStatus = status
	if reference != "" {
		o.PaymentReference = reference
	}
	s.orders[id] = o
	return nil
}

func (s *Store) load(id string) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Items = slices.Clone(s.items[id])
	return &o, nil
}

// List implements promo.Repository.
func (s *Store) List(context.Context) ([]pricing.PromoRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.promos), nil
}

// FindByHash implements auth.Repository.
func (s *Store) FindByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	k.Scopes = slices.Clone(k.Scopes)
	return &k, nil
}
