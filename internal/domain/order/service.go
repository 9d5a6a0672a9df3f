package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/catalog"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/inventory"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/payment"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/saga"
)

const rollbackNote = "checkout rollback"

// Ledger is the slice of the inventory ledger the assembler needs.
type Ledger interface {
	ApplyChange(ctx context.Context, c inventory.Change) (inventory.Result, error)
}

// PromoSource hands out the current promo table snapshot.
type PromoSource interface {
	Table() pricing.Table
}

// PaymentGateway creates payment intents for card orders.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
}

// Config holds non-dependency settings for the Service.
type Config struct {
	Rules    pricing.Rules
	Currency string

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service assembles orders and drives their lifecycle.
type Service struct {
	catalog  catalog.Repository
	orders   Repository
	ledger   Ledger
	promos   PromoSource
	payments PaymentGateway

	rules    pricing.Rules
	currency string
	saga     *saga.Saga
	placed   metric.Int64Counter
	now      func() time.Time
}

// NewService creates an order Service. payments may be nil, in which case
// card orders are placed but report a payment provider failure.
func NewService(
	cfg Config,
	catalogRepo catalog.Repository,
	orders Repository,
	ledger Ledger,
	promos PromoSource,
	payments PaymentGateway,
) (*Service, error) {
	placed, err := cfg.MeterProvider.Meter("order").Int64Counter("checkout.orders",
		metric.WithDescription("Checkout attempts by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout.orders counter")
	}
	return &Service{
		catalog:  catalogRepo,
		orders:   orders,
		ledger:   ledger,
		promos:   promos,
		payments: payments,
		rules:    cfg.Rules,
		currency: cfg.Currency,
		saga:     saga.New("checkout", cfg.TracerProvider),
		placed:   placed,
		now:      time.Now,
	}, nil
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Cart           CartSnapshot
	Address        Address
	ShippingMethod string
	PaymentMethod  string
	PromoCode      string
	IdempotencyKey string
	UserID         string
}

// PlaceOrderResult holds the output of a placed (or replayed) order.
type PlaceOrderResult struct {
	Order *Order
	Promo pricing.PromoResult
	// Replayed is set when the idempotency key matched an earlier order and
	// nothing was executed.
	Replayed bool
	// Intent is the payment intent for a card order, when one was created.
	Intent *payment.Intent
	// PaymentErr is a *PaymentProviderError when the intent could not be
	// created. The order is still placed.
	PaymentErr error
}

// QuoteRequest holds the input for a pricing preview.
type QuoteRequest struct {
	Cart           CartSnapshot
	ShippingMethod string
	PromoCode      string
}

// Quote prices a cart with server-trusted prices and no side effects.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*PricedOrder, error) {
	if err := validateCart(req.Cart); err != nil {
		return nil, err
	}
	method, err := pricing.ParseShippingMethod(req.ShippingMethod)
	if err != nil {
		return nil, err
	}
	return s.price(ctx, req.Cart, method, req.PromoCode)
}

// PlaceOrder validates the request, prices it on server data, and persists
// the order, its items, and the stock decrements as one compensated unit.
// Validation errors are returned before anything is written.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if err := validateCart(req.Cart); err != nil {
		return nil, err
	}
	if err := validateAddress(req.Address); err != nil {
		return nil, err
	}
	shipping, err := pricing.ParseShippingMethod(req.ShippingMethod)
	if err != nil {
		return nil, err
	}
	method, err := ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = IdempotencyKey(req.Cart.Lines, uuid.NewString())
	}
	lg := zctx.From(ctx).With(zap.String("idempotency_key", key))

	if prev, err := s.orders.FindByIdempotencyKey(ctx, key); err == nil {
		lg.Info("Replaying order for idempotency key", zap.String("order_id", prev.ID))
		s.count(ctx, "replayed")
		return &PlaceOrderResult{Order: prev, Replayed: true}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, &PersistenceError{Op: "find order by idempotency key", Err: err}
	}

	priced, err := s.price(ctx, req.Cart, shipping, req.PromoCode)
	if err != nil {
		return nil, err
	}

	o := s.newOrder(req, key, shipping, method, priced)
	lg = lg.With(zap.String("order_id", o.ID))

	if err := s.saga.Run(ctx, s.steps(o)); err != nil {
		return s.placeFailed(ctx, lg, key, o, err)
	}

	s.count(ctx, "placed")
	lg.Info("Order placed",
		zap.String("order_number", o.Number),
		zap.Int64("total", o.Total),
		zap.Int("items", len(o.Items)),
	)

	res := &PlaceOrderResult{Order: o, Promo: priced.Quote.Promo}
	if method == PaymentCard {
		s.requestPayment(ctx, lg, res)
	}
	return res, nil
}

func (s *Service) newOrder(
	req PlaceOrderRequest,
	key string,
	shipping pricing.ShippingMethod,
	method PaymentMethod,
	priced *PricedOrder,
) *Order {
	now := s.now().UTC()
	id := uuid.New()
	q := priced.Quote

	o := &Order{
		ID:             id.String(),
		Number:         Number(id, now),
		UserID:         req.UserID,
		IdempotencyKey: key,
		Status:         StatusPending,
		PaymentMethod:  method,
		PaymentStatus:  PaymentUnpaid,
		ShippingMethod: shipping,
		Currency:       s.currency,
		Subtotal:       q.Subtotal,
		ShippingCost:   q.ShippingCost,
		Discount:       q.Discount,
		Tax:            q.Tax,
		Total:          q.Total,
		Address:        trimAddress(req.Address),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if q.Promo.Applied {
		o.PromoCode = q.Promo.Code
	}

	o.Items = make([]Item, len(priced.Lines))
	for i, l := range priced.Lines {
		v := l.Variant
		o.Items[i] = Item{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			ProductID:  v.ProductID,
			VariantID:  v.ID,
			Name:       v.Product.Name,
			SKU:        v.SKU,
			Size:       v.Size,
			Color:      v.Color,
			ImageURL:   v.Product.ImageURL,
			UnitPrice:  l.UnitPrice,
			Quantity:   l.Quantity,
			TotalPrice: l.Total(),
		}
	}
	return o
}

// steps lists the checkout actions and their compensations: the order row,
// its items, and one stock decrement per item.
func (s *Service) steps(o *Order) []saga.Step {
	steps := []saga.Step{
		{
			Name: "create_order",
			Do:   func(ctx context.Context) error { return s.orders.Create(ctx, o) },
			Undo: func(ctx context.Context) error { return s.orders.Delete(ctx, o.ID) },
		},
		{
			Name: "create_items",
			Do:   func(ctx context.Context) error { return s.orders.CreateItems(ctx, o.ID, o.Items) },
			Undo: func(ctx context.Context) error { return s.orders.DeleteItems(ctx, o.ID) },
		},
	}
	for _, item := range o.Items {
		steps = append(steps, saga.Step{
			Name: "decrement_stock",
			Do: func(ctx context.Context) error {
				_, err := s.ledger.ApplyChange(ctx, inventory.Change{
					VariantID: item.VariantID,
					Action:    inventory.ActionSale,
					Quantity:  item.Quantity,
					OrderID:   o.ID,
				})
				return err
			},
			Undo: func(ctx context.Context) error {
				_, err := s.ledger.ApplyChange(ctx, inventory.Change{
					VariantID: item.VariantID,
					Action:    inventory.ActionReturn,
					Quantity:  item.Quantity,
					OrderID:   o.ID,
					Notes:     rollbackNote,
				})
				return err
			},
		})
	}
	return steps
}

// placeFailed turns a saga failure into the caller-facing error. A lost race
// on the idempotency key returns the winning order instead.
func (s *Service) placeFailed(ctx context.Context, lg *zap.Logger, key string, o *Order, err error) (*PlaceOrderResult, error) {
	var compErr *saga.CompensationError
	if errors.As(err, &compErr) {
		s.count(ctx, "inconsistent")
		lg.Error("Checkout compensation failed, manual reconciliation required",
			zap.String("failed_step", compErr.Cause.Step),
			zap.Strings("uncompensated", compErr.Failed),
			zap.NamedError("cause", compErr.Cause.Err),
			zap.Error(compErr.Errs),
		)
		return nil, &PersistenceError{Op: "place order " + o.ID, Err: err}
	}

	if errors.Is(err, ErrDuplicateKey) {
		winner, findErr := s.orders.FindByIdempotencyKey(ctx, key)
		if findErr != nil {
			return nil, &PersistenceError{Op: "load order for idempotency key", Err: findErr}
		}
		s.count(ctx, "replayed")
		return &PlaceOrderResult{Order: winner, Replayed: true}, nil
	}

	var nsErr *inventory.NegativeStockError
	if errors.As(err, &nsErr) {
		s.count(ctx, "insufficient_stock")
		lg.Info("Checkout rolled back on insufficient stock", zap.String("variant_id", nsErr.VariantID))
		return nil, &InsufficientStockError{
			VariantID: nsErr.VariantID,
			Available: nsErr.Available,
			Requested: nsErr.Requested,
		}
	}

	s.count(ctx, "failed")
	lg.Warn("Checkout rolled back", zap.Error(err))
	return nil, &PersistenceError{Op: "place order", Err: err}
}

func (s *Service) requestPayment(ctx context.Context, lg *zap.Logger, res *PlaceOrderResult) {
	o := res.Order
	if s.payments == nil {
		res.PaymentErr = &PaymentProviderError{Err: errors.New("payment provider not configured")}
		return
	}

	intent, err := s.payments.CreateIntent(ctx, payment.IntentRequest{
		OrderID:        o.ID,
		Amount:         o.Total,
		Currency:       o.Currency,
		Description:    fmt.Sprintf("Order %s (%d items)", o.Number, len(o.Items)),
		IdempotencyKey: o.ID,
	})
	if err != nil {
		lg.Warn("Payment intent failed, order stays pending", zap.Error(err))
		res.PaymentErr = &PaymentProviderError{Err: err}
		return
	}

	if err := s.orders.SetPayment(ctx, o.ID, PaymentPending, intent.ID); err != nil {
		// The webhook carries the reference too, so the order can still be
		// reconciled when it arrives.
		lg.Error("Record payment intent", zap.String("intent_id", intent.ID), zap.Error(err))
	} else {
		o.PaymentStatus = PaymentPending
		o.PaymentReference = intent.ID
	}
	res.Intent = intent
}

// price resolves the cart against the catalog and runs the pricing engine.
// Client-supplied prices are ignored.
func (s *Service) price(ctx context.Context, cart CartSnapshot, shipping pricing.ShippingMethod, promoCode string) (*PricedOrder, error) {
	ids := make([]string, len(cart.Lines))
	for i, l := range cart.Lines {
		ids[i] = l.VariantID
	}

	fetched, err := s.catalog.GetVariants(ctx, ids)
	if err != nil {
		return nil, &PersistenceError{Op: "get variants", Err: err}
	}
	byID := make(map[string]catalog.Variant, len(fetched))
	for _, v := range fetched {
		byID[v.ID] = v
	}

	priced := &PricedOrder{
		Lines:    make([]PricedLine, len(cart.Lines)),
		Shipping: shipping,
	}
	lines := make([]pricing.Line, len(cart.Lines))
	for i, l := range cart.Lines {
		v, ok := byID[l.VariantID]
		if !ok {
			return nil, &UnknownVariantError{VariantID: l.VariantID}
		}
		if !v.Active {
			return nil, &VariantUnavailableError{VariantID: l.VariantID}
		}
		unit := v.UnitPrice()
		if unit < 0 {
			return nil, &PersistenceError{
				Op:  "price variant " + v.ID,
				Err: errors.Errorf("negative unit price %d", unit),
			}
		}
		priced.Lines[i] = PricedLine{Variant: v, Quantity: l.Quantity, UnitPrice: unit}
		lines[i] = pricing.Line{UnitPrice: unit, Quantity: l.Quantity}
	}

	q, err := pricing.Price(s.rules, s.promos.Table(), pricing.Input{
		Lines:     lines,
		Shipping:  shipping,
		PromoCode: promoCode,
		At:        s.now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "price cart")
	}
	priced.Quote = q
	return priced, nil
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "get order", Err: err}
	}
	return o, nil
}

// Transition moves an order to status to. Entering cancelled or refunded
// returns every item's stock to the shelf.
func (s *Service) Transition(ctx context.Context, id string, to Status) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}

	u := StatusUpdate{OrderID: id, From: o.Status, To: to, At: s.now().UTC()}
	if to == StatusRefunded && o.PaymentStatus == PaymentPaid {
		u.PaymentStatus = PaymentRefunded
	}
	return s.apply(ctx, o, u)
}

// PaymentResult is the provider's verdict on an order's payment.
type PaymentResult struct {
	OrderID        string
	TransactionRef string
	Succeeded      bool
}

// HandlePaymentResult applies a payment callback. Success confirms a pending
// order; failure cancels it and restocks. A repeat of a callback that was
// already applied is a no-op.
func (s *Service) HandlePaymentResult(ctx context.Context, r PaymentResult) (*Order, error) {
	o, err := s.Get(ctx, r.OrderID)
	if err != nil {
		return nil, err
	}

	if o.Status != StatusPending {
		if alreadyApplied(o, r) {
			return o, nil
		}
		return nil, errors.Wrapf(ErrStatusConflict, "order is %s", o.Status)
	}

	u := StatusUpdate{
		OrderID:          o.ID,
		From:             StatusPending,
		PaymentReference: r.TransactionRef,
		At:               s.now().UTC(),
	}
	if r.Succeeded {
		u.To, u.PaymentStatus = StatusConfirmed, PaymentPaid
	} else {
		u.To, u.PaymentStatus = StatusCancelled, PaymentFailed
	}

	updated, err := s.apply(ctx, o, u)
	if errors.Is(err, ErrStatusConflict) {
		// A concurrent delivery of the same callback may have won.
		if cur, getErr := s.Get(ctx, r.OrderID); getErr == nil && alreadyApplied(cur, r) {
			return cur, nil
		}
	}
	return updated, err
}

func alreadyApplied(o *Order, r PaymentResult) bool {
	if r.Succeeded {
		return o.PaymentStatus == PaymentPaid && o.Status != StatusCancelled
	}
	return o.PaymentStatus == PaymentFailed && o.Status == StatusCancelled
}

// apply runs a conditional status update and, when the new status releases
// stock, restocks every item. Only the caller whose update wins restocks.
func (s *Service) apply(ctx context.Context, o *Order, u StatusUpdate) (*Order, error) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	if err := s.orders.UpdateStatus(ctx, u); err != nil {
		if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "update order status", Err: err}
	}
	lg.Info("Order status changed",
		zap.String("from", string(u.From)),
		zap.String("to", string(u.To)),
	)

	if u.To.releasesStock() {
		s.restock(ctx, lg, o, u.To)
	}
	return s.Get(ctx, o.ID)
}

func (s *Service) restock(ctx context.Context, lg *zap.Logger, o *Order, to Status) {
	for _, item := range o.Items {
		if item.VariantID == "" {
			continue
		}
		_, err := s.ledger.ApplyChange(ctx, inventory.Change{
			VariantID: item.VariantID,
			Action:    inventory.ActionReturn,
			Quantity:  item.Quantity,
			OrderID:   o.ID,
			Notes:     "order " + string(to),
		})
		if err != nil {
			// The status already changed, so this needs an admin to restock.
			lg.Error("Restock failed",
				zap.String("variant_id", item.VariantID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) count(ctx context.Context, result string) {
	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
