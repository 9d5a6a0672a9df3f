package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/order"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
)

type checkoutRequest struct {
	lines          []order.CartLine
	address        order.Address
	shippingMethod string
	paymentMethod  string
	promoCode      string
	idempotencyKey string
}

func (c *checkoutRequest) decode(d *jx.Decoder, key string) (err error) {
	switch key {
	case "items":
		return d.Arr(func(d *jx.Decoder) error {
			l, err := decodeLine(d)
			c.lines = append(c.lines, l)
			return err
		})
	case "address":
		return decodeWith(d, func(d *jx.Decoder, key string) error {
			return decodeAddress(d, key, &c.address)
		})
	case "shippingMethod":
		c.shippingMethod, err = optStr(d)
	case "paymentMethod":
		c.paymentMethod, err = optStr(d)
	case "promoCode":
		c.promoCode, err = optStr(d)
	case "idempotencyKey":
		c.idempotencyKey, err = optStr(d)
	default:
		return d.Skip()
	}
	return err
}

func decodeLine(d *jx.Decoder) (order.CartLine, error) {
	var l order.CartLine
	err := decodeWith(d, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "variantId":
			l.VariantID, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		case "unitPrice":
			l.UnitPrice, err = d.Int64()
		case "name":
			l.Name, err = optStr(d)
		default:
			return d.Skip()
		}
		return err
	})
	return l, err
}

func decodeAddress(d *jx.Decoder, key string, a *order.Address) (err error) {
	var dst *string
	switch key {
	case "name":
		dst = &a.Name
	case "phone":
		dst = &a.Phone
	case "line1":
		dst = &a.Line1
	case "line2":
		dst = &a.Line2
	case "city":
		dst = &a.City
	case "province":
		dst = &a.Province
	case "postalCode":
		dst = &a.PostalCode
	case "notes":
		dst = &a.Notes
	default:
		return d.Skip()
	}
	*dst, err = optStr(d)
	return err
}

// PlaceOrder handles POST /api/checkout. The Idempotency-Key header wins over
// the body field. A replayed order answers 200 instead of 201.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeObject(w, r, req.decode); err != nil {
		writeError(w, r, err)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.idempotencyKey = key
	}

	res, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		Cart:           order.CartSnapshot{Lines: req.lines},
		Address:        req.address,
		ShippingMethod: req.shippingMethod,
		PaymentMethod:  req.paymentMethod,
		PromoCode:      req.promoCode,
		IdempotencyKey: req.idempotencyKey,
		UserID:         r.Header.Get("X-User-ID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		o := res.Order
		e.ObjStart()
		strField(e, "orderId", o.ID)
		strField(e, "orderNumber", o.Number)
		strField(e, "status", string(o.Status))
		strField(e, "currency", o.Currency)
		intField(e, "subtotal", o.Subtotal)
		intField(e, "shippingCost", o.ShippingCost)
		intField(e, "discount", o.Discount)
		intField(e, "tax", o.Tax)
		intField(e, "total", o.Total)
		boolField(e, "replayed", res.Replayed)
		if res.Promo.Code != "" {
			e.FieldStart("promo")
			encodePromo(e, res.Promo)
		}
		encodePayment(e, o, res)
		e.ObjEnd()
	})
}

func encodePayment(e *jx.Encoder, o *order.Order, res *order.PlaceOrderResult) {
	e.FieldStart("payment")
	e.ObjStart()
	strField(e, "method", string(o.PaymentMethod))
	strField(e, "status", string(o.PaymentStatus))
	if res.Intent != nil {
		strField(e, "intentId", res.Intent.ID)
		strField(e, "clientSecret", res.Intent.ClientSecret)
	}
	if res.PaymentErr != nil {
		strField(e, "error", res.PaymentErr.Error())
	}
	e.ObjEnd()
}

func encodePromo(e *jx.Encoder, p pricing.PromoResult) {
	e.ObjStart()
	strField(e, "code", p.Code)
	boolField(e, "applied", p.Applied)
	if p.Invalid {
		boolField(e, "invalid", true)
		strField(e, "reason", p.Reason)
	}
	if p.Description != "" {
		strField(e, "description", p.Description)
	}
	e.ObjEnd()
}

// Quote handles POST /api/checkout/quote. It accepts the checkout body and
// ignores the fields pricing does not need.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeObject(w, r, req.decode); err != nil {
		writeError(w, r, err)
		return
	}

	priced, err := h.orders.Quote(r.Context(), order.QuoteRequest{
		Cart:           order.CartSnapshot{Lines: req.lines},
		ShippingMethod: req.shippingMethod,
		PromoCode:      req.promoCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := priced.Quote
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		strField(e, "currency", h.currency)
		strField(e, "shippingMethod", string(priced.Shipping))
		e.FieldStart("lines")
		e.ArrStart()
		for _, l := range priced.Lines {
			e.ObjStart()
			strField(e, "variantId", l.Variant.ID)
			strField(e, "name", l.Variant.Product.Name)
			strField(e, "sku", l.Variant.SKU)
			intField(e, "unitPrice", l.UnitPrice)
			intField(e, "quantity", int64(l.Quantity))
			intField(e, "total", l.Total())
			e.ObjEnd()
		}
		e.ArrEnd()
		intField(e, "subtotal", q.Subtotal)
		intField(e, "shippingCost", q.ShippingCost)
		intField(e, "discount", q.Discount)
		intField(e, "tax", q.Tax)
		intField(e, "total", q.Total)
		if q.Promo.Code != "" {
			e.FieldStart("promo")
			encodePromo(e, q.Promo)
		}
		e.ObjEnd()
	})
}
