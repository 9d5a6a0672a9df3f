package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/inventory"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/order"
)

// GetOrder handles GET /api/admin/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateOrderStatus handles POST /api/admin/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var raw string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) (err error) {
		if key != "status" {
			return d.Skip()
		}
		raw, err = d.Str()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := order.ParseStatus(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Transition(r.Context(), r.PathValue("id"), to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ChangeStock handles POST /api/admin/stock.
func (h *Handler) ChangeStock(w http.ResponseWriter, r *http.Request) {
	var (
		c      inventory.Change
		action string
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "variantId":
			c.VariantID, err = d.Str()
		case "actionKind":
			action, err = d.Str()
		case "quantity":
			c.Quantity, err = d.Int()
		case "notes":
			c.Notes, err = optStr(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if c.VariantID == "" {
		writeError(w, r, invalidRequest("variantId is required"))
		return
	}
	if c.Action, err = inventory.ParseAction(action); err != nil {
		writeError(w, r, err)
		return
	}
	if key, ok := apiKeyFromContext(r.Context()); ok {
		c.Notes = attributeNote(c.Notes, key.Name)
	}

	res, err := h.ledger.ApplyChange(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		strField(e, "variantId", res.VariantID)
		intField(e, "previousStock", int64(res.PreviousStock))
		intField(e, "newStock", int64(res.NewStock))
		boolField(e, "lowStock", res.LowStock)
		e.FieldStart("event")
		encodeEvent(e, res.Event)
		e.ObjEnd()
	})
}

// StockEvents handles GET /api/admin/stock/{variantId}/events?limit=N.
func (h *Handler) StockEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, invalidRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	events, err := h.ledger.Events(r.Context(), r.PathValue("variantId"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("events")
		e.ArrStart()
		for _, ev := range events {
			encodeEvent(e, ev)
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

func encodeEvent(e *jx.Encoder, ev inventory.Event) {
	e.ObjStart()
	strField(e, "id", ev.ID)
	strField(e, "variantId", ev.VariantID)
	strField(e, "actionKind", string(ev.Action))
	intField(e, "quantityChange", int64(ev.QuantityChange))
	intField(e, "quantityBefore", int64(ev.QuantityBefore))
	intField(e, "quantityAfter", int64(ev.QuantityAfter))
	if ev.OrderID != "" {
		strField(e, "orderId", ev.OrderID)
	}
	if ev.Notes != "" {
		strField(e, "notes", ev.Notes)
	}
	timeField(e, "createdAt", &ev.CreatedAt)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	strField(e, "id", o.ID)
	strField(e, "orderNumber", o.Number)
	if o.UserID != "" {
		strField(e, "userId", o.UserID)
	}
	strField(e, "status", string(o.Status))
	strField(e, "paymentMethod", string(o.PaymentMethod))
	strField(e, "paymentStatus", string(o.PaymentStatus))
	if o.PaymentReference != "" {
		strField(e, "paymentReference", o.PaymentReference)
	}
	strField(e, "shippingMethod", string(o.ShippingMethod))
	if o.PromoCode != "" {
		strField(e, "promoCode", o.PromoCode)
	}
	strField(e, "currency", o.Currency)
	intField(e, "subtotal", o.Subtotal)
	intField(e, "shippingCost", o.ShippingCost)
	intField(e, "discount", o.Discount)
	intField(e, "tax", o.Tax)
	intField(e, "total", o.Total)

	a := o.Address
	e.FieldStart("address")
	e.ObjStart()
	strField(e, "name", a.Name)
	strField(e, "phone", a.Phone)
	strField(e, "line1", a.Line1)
	strField(e, "line2", a.Line2)
	strField(e, "city", a.City)
	strField(e, "province", a.Province)
	strField(e, "postalCode", a.PostalCode)
	strField(e, "notes", a.Notes)
	e.ObjEnd()

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		strField(e, "id", it.ID)
		strField(e, "productId", it.ProductID)
		strField(e, "variantId", it.VariantID)
		strField(e, "name", it.Name)
		strField(e, "sku", it.SKU)
		strField(e, "size", it.Size)
		strField(e, "color", it.Color)
		strField(e, "imageUrl", it.ImageURL)
		intField(e, "unitPrice", it.UnitPrice)
		intField(e, "quantity", int64(it.Quantity))
		intField(e, "totalPrice", it.TotalPrice)
		e.ObjEnd()
	}
	e.ArrEnd()

	timeField(e, "createdAt", &o.CreatedAt)
	timeField(e, "updatedAt", &o.UpdatedAt)
	timeField(e, "confirmedAt", o.ConfirmedAt)
	timeField(e, "shippedAt", o.ShippedAt)
	timeField(e, "deliveredAt", o.DeliveredAt)
	timeField(e, "cancelledAt", o.CancelledAt)
	e.ObjEnd()
}

// attributeNote tags an admin stock note with the key that made the change.
func attributeNote(notes, keyName string) string {
	if notes == "" {
		return "by " + keyName
	}
	return notes + " (by " + keyName + ")"
}
