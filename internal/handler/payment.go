package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/order"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/payment"
)

// PaymentCallback handles POST /api/payments/callback. The raw body must be
// signed with the shared webhook secret in X-Signature.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, invalidRequest("read body: %v", err))
		return
	}
	if !payment.VerifySignature(h.webhookSecret, body, r.Header.Get("X-Signature")) {
		zctx.From(r.Context()).Warn("Payment callback with bad signature")
		writeAPIError(w, apiError{http.StatusUnauthorized, KindUnauthorized, "invalid signature", false})
		return
	}

	var (
		res    order.PaymentResult
		status string
	)
	err = decodeWith(jx.DecodeBytes(body), func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "orderId":
			res.OrderID, err = d.Str()
		case "transactionRef":
			res.TransactionRef, err = optStr(d)
		case "status":
			status, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch status {
	case "succeeded":
		res.Succeeded = true
	case "failed":
	default:
		writeError(w, r, invalidRequest("unknown payment status %q", status))
		return
	}
	if res.OrderID == "" {
		writeError(w, r, invalidRequest("orderId is required"))
		return
	}

	o, err := h.orders.HandlePaymentResult(r.Context(), res)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Payment callback applied",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.String("payment_status", string(o.PaymentStatus)),
	)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		strField(e, "orderId", o.ID)
		strField(e, "status", string(o.Status))
		strField(e, "paymentStatus", string(o.PaymentStatus))
		e.ObjEnd()
	})
}
