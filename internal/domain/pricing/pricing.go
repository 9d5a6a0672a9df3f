// Package pricing computes cart totals. Everything here is a pure function of
// its inputs: the same cart, rules and promo table always produce the same
// quote, so the storefront preview and the authoritative checkout agree.
//
// All amounts are int64 minor currency units.
package pricing

import (
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ShippingMethod selects the shipping tier.
type ShippingMethod string

const (
	// ShippingStandard costs a flat fee unless the subtotal reaches the
	// free-shipping threshold.
	ShippingStandard ShippingMethod = "standard"
	// ShippingExpress always costs its flat fee.
	ShippingExpress ShippingMethod = "express"
)

var (
	// ErrUnknownShippingMethod is returned for a shipping method other than
	// standard or express.
	ErrUnknownShippingMethod = errors.New("unknown shipping method")
	// ErrInvalidLine is returned for a line with a non-positive quantity or a
	// negative unit price.
	ErrInvalidLine = errors.New("invalid cart line")
	// ErrAmountOverflow is returned when a line total or the cart total does
	// not fit in int64 minor units.
	ErrAmountOverflow = errors.New("amount overflows")
)

// MaxQuantity is the largest quantity a single cart line may carry.
const MaxQuantity = 10_000

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.NewFromInt(math.MaxInt64)
)

// ParseShippingMethod validates a client supplied shipping method.
func ParseShippingMethod(s string) (ShippingMethod, error) {
	switch m := ShippingMethod(s); m {
	case ShippingStandard, ShippingExpress:
		return m, nil
	default:
		return "", errors.Wrapf(ErrUnknownShippingMethod, "%q", s)
	}
}

// Rules holds the shipping tiers and tax rate the engine prices with.
type Rules struct {
	StandardFee           int64
	ExpressFee            int64
	FreeShippingThreshold int64
	// TaxRate is a percentage applied to the discounted subtotal.
	TaxRate decimal.Decimal
}

// DefaultRules returns the storefront's stock shipping tiers with no tax.
func DefaultRules() Rules {
	return Rules{
		StandardFee:           300,
		ExpressFee:            1000,
		FreeShippingThreshold: 10000,
		TaxRate:               decimal.Zero,
	}
}

// Line is a priced cart line: unit price times quantity.
type Line struct {
	UnitPrice int64
	Quantity  int
}

// Total returns UnitPrice * Quantity. It does not check for overflow; Price
// does.
func (l Line) Total() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

func (l Line) checkedTotal() (int64, bool) {
	if l.UnitPrice != 0 && int64(l.Quantity) > math.MaxInt64/l.UnitPrice {
		return 0, false
	}
	return l.Total(), true
}

func checkedAdd(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// Input is everything a quote depends on. At is the evaluation time for promo
// validity windows; passing it explicitly keeps Price deterministic.
type Input struct {
	Lines     []Line
	Shipping  ShippingMethod
	PromoCode string
	At        time.Time
}

// Quote is the monetary breakdown of a cart.
type Quote struct {
	Subtotal     int64
	ShippingCost int64
	Discount     int64
	Tax          int64
	Total        int64
	Promo        PromoResult
}

// PromoResult reports what happened to the supplied promo code. An invalid
// code is not an error: the quote is still produced with zero discount.
type PromoResult struct {
	Code        string
	Applied     bool
	Invalid     bool
	Reason      string
	Description string
}

// Price computes the quote for in under rules, looking promo codes up in promos.
func Price(rules Rules, promos Table, in Input) (Quote, error) {
	var q Quote
	for i, l := range in.Lines {
		if l.Quantity <= 0 || l.Quantity > MaxQuantity || l.UnitPrice < 0 {
			return Quote{}, errors.Wrapf(ErrInvalidLine, "line %d", i)
		}
		total, ok := l.checkedTotal()
		if !ok {
			return Quote{}, errors.Wrapf(ErrAmountOverflow, "line %d", i)
		}
		if q.Subtotal, ok = checkedAdd(q.Subtotal, total); !ok {
			return Quote{}, errors.Wrap(ErrAmountOverflow, "subtotal")
		}
	}

	shipping, err := shippingCost(rules, in.Shipping, q.Subtotal)
	if err != nil {
		return Quote{}, err
	}
	q.ShippingCost = shipping

	q.Discount, q.Promo = promos.apply(in.PromoCode, q.Subtotal, in.At)

	taxable := q.Subtotal - q.Discount
	q.Tax = percentOf(taxable, rules.TaxRate)

	gross, ok := checkedAdd(q.Subtotal, q.ShippingCost)
	if ok {
		gross, ok = checkedAdd(gross, q.Tax)
	}
	if !ok {
		return Quote{}, errors.Wrap(ErrAmountOverflow, "total")
	}
	q.Total = gross - q.Discount
	if q.Total < 0 {
		q.Total = 0
	}
	return q, nil
}

func shippingCost(rules Rules, method ShippingMethod, subtotal int64) (int64, error) {
	switch method {
	case ShippingStandard:
		if subtotal >= rules.FreeShippingThreshold {
			return 0, nil
		}
		return rules.StandardFee, nil
	case ShippingExpress:
		return rules.ExpressFee, nil
	default:
		return 0, errors.Wrapf(ErrUnknownShippingMethod, "%q", method)
	}
}

// percentOf returns amount * pct / 100 rounded to the nearest minor unit,
// saturating at math.MaxInt64.
func percentOf(amount int64, pct decimal.Decimal) int64 {
	if amount <= 0 || pct.Sign() <= 0 {
		return 0
	}
	v := decimal.NewFromInt(amount).Mul(pct).Div(hundred).Round(0)
	if v.GreaterThan(maxAmount) {
		return math.MaxInt64
	}
	return v.IntPart()
}
