package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PromoKind enumerates the supported promo discount strategies.
type PromoKind string

const (
	// PromoPercentage takes Value percent off the subtotal.
	PromoPercentage PromoKind = "percentage"
	// PromoFixed takes Value minor units off the subtotal.
	PromoFixed PromoKind = "fixed"
)

// Reasons reported for a promo code that did not apply.
const (
	ReasonUnknownCode     = "unknown code"
	ReasonInactive        = "code is not active"
	ReasonNotYetValid     = "code is not yet valid"
	ReasonExpired         = "code has expired"
	ReasonBelowMinimum    = "minimum subtotal not met"
	ReasonUnsupportedKind = "unsupported discount type"
)

// PromoRule defines a promo code's discount and eligibility.
type PromoRule struct {
	Code        string
	Kind        PromoKind
	Value       decimal.Decimal
	MinSubtotal int64
	Description string
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	Active      bool
}

// Table maps normalized promo codes to their rules. It is treated as an
// immutable snapshot: build a new one instead of mutating it.
type Table map[string]PromoRule

// NormalizeCode trims and upper-cases a promo code for lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewTable indexes rules by normalized code. Later rules win on duplicates.
func NewTable(rules ...PromoRule) Table {
	t := make(Table, len(rules))
	for _, r := range rules {
		t[NormalizeCode(r.Code)] = r
	}
	return t
}

// Lookup finds the rule for code, ignoring case and surrounding whitespace.
func (t Table) Lookup(code string) (PromoRule, bool) {
	r, ok := t[NormalizeCode(code)]
	return r, ok
}

// apply returns the discount for code against subtotal at time at. The
// discount never exceeds the subtotal.
func (t Table) apply(code string, subtotal int64, at time.Time) (int64, PromoResult) {
	norm := NormalizeCode(code)
	if norm == "" {
		return 0, PromoResult{}
	}
	res := PromoResult{Code: norm}

	rule, ok := t[norm]
	if !ok {
		return 0, res.reject(ReasonUnknownCode)
	}
	if reason := rule.ineligible(subtotal, at); reason != "" {
		return 0, res.reject(reason)
	}

	var amount int64
	switch rule.Kind {
	case PromoPercentage:
		amount = percentOf(subtotal, rule.Value)
	case PromoFixed:
		amount = rule.Value.Round(0).IntPart()
	default:
		return 0, res.reject(ReasonUnsupportedKind)
	}

	amount = min(max(amount, 0), subtotal)
	res.Applied = true
	res.Description = rule.Description
	return amount, res
}

func (r PromoRule) ineligible(subtotal int64, at time.Time) string {
	switch {
	case !r.Active:
		return ReasonInactive
	case r.ValidFrom != nil && at.Before(*r.ValidFrom):
		return ReasonNotYetValid
	case r.ValidUntil != nil && at.After(*r.ValidUntil):
		return ReasonExpired
	case subtotal < r.MinSubtotal:
		return ReasonBelowMinimum
	}
	return ""
}

func (p PromoResult) reject(reason string) PromoResult {
	p.Invalid = true
	p.Reason = reason
	return p
}
