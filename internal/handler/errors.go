package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/inventory"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/order"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
)

// Error kinds reported to clients.
const (
	KindInvalidRequest          = "InvalidRequest"
	KindEmptyCart               = "EmptyCart"
	KindInvalidAddress          = "InvalidAddress"
	KindInvalidQuantity         = "InvalidQuantity"
	KindUnknownVariant          = "UnknownVariant"
	KindUnknownShippingMethod   = "UnknownShippingMethod"
	KindUnknownPaymentMethod    = "UnknownPaymentMethod"
	KindInsufficientStock       = "InsufficientStock"
	KindVariantUnavailable      = "VariantUnavailable"
	KindNegativeStock           = "NegativeStock"
	KindStatusConflict          = "StatusConflict"
	KindNotFound                = "NotFound"
	KindUnauthorized            = "Unauthorized"
	KindForbidden               = "Forbidden"
	KindOrderPersistenceFailure = "OrderPersistenceFailure"
	KindInternal                = "Internal"
)

type apiError struct {
	status    int
	kind      string
	message   string
	retryable bool
}

func classify(err error) apiError {
	var (
		reqErr     *requestError
		addrErr    *order.InvalidAddressError
		qtyErr     *order.InvalidQuantityError
		variantErr *order.UnknownVariantError
		payErr     *order.UnknownPaymentMethodError
		stockErr   *order.InsufficientStockError
		unavailErr *order.VariantUnavailableError
		transErr   *order.InvalidTransitionError
		persistErr *order.PersistenceError
	)
	msg := err.Error()
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, inventory.ErrUnknownAction):
		return apiError{http.StatusBadRequest, KindInvalidRequest, msg, false}
	case errors.Is(err, order.ErrEmptyCart):
		return apiError{http.StatusBadRequest, KindEmptyCart, msg, false}
	case errors.As(err, &addrErr):
		return apiError{http.StatusBadRequest, KindInvalidAddress, msg, false}
	case errors.As(err, &qtyErr),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrAmountOverflow):
		return apiError{http.StatusBadRequest, KindInvalidQuantity, msg, false}
	case errors.As(err, &variantErr):
		return apiError{http.StatusBadRequest, KindUnknownVariant, msg, false}
	case errors.Is(err, pricing.ErrUnknownShippingMethod):
		return apiError{http.StatusBadRequest, KindUnknownShippingMethod, msg, false}
	case errors.As(err, &payErr):
		return apiError{http.StatusBadRequest, KindUnknownPaymentMethod, msg, false}
	case errors.As(err, &stockErr):
		return apiError{http.StatusConflict, KindInsufficientStock, msg, false}
	case errors.As(err, &unavailErr):
		return apiError{http.StatusConflict, KindVariantUnavailable, msg, false}
	case errors.Is(err, inventory.ErrNegativeStock):
		return apiError{http.StatusConflict, KindNegativeStock, msg, false}
	case errors.As(err, &transErr), errors.Is(err, order.ErrStatusConflict):
		return apiError{http.StatusConflict, KindStatusConflict, msg, false}
	case errors.Is(err, order.ErrNotFound), errors.Is(err, inventory.ErrVariantNotFound):
		return apiError{http.StatusNotFound, KindNotFound, msg, false}
	case errors.As(err, &persistErr):
		return apiError{http.StatusInternalServerError, KindOrderPersistenceFailure, "order could not be saved, please retry", true}
	default:
		return apiError{http.StatusInternalServerError, KindInternal, "internal error", false}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := classify(err)
	if ae.status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.String("kind", ae.kind), zap.Error(err))
	}
	writeAPIError(w, ae)
}

func writeAPIError(w http.ResponseWriter, ae apiError) {
	writeJSON(w, ae.status, func(e *jx.Encoder) {
		e.ObjStart()
		strField(e, "kind", ae.kind)
		strField(e, "message", ae.message)
		boolField(e, "retryable", ae.retryable)
		e.ObjEnd()
	})
}
