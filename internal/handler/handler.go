// Package handler exposes the checkout core over HTTP. Bodies are JSON and
// are encoded and decoded with jx.
package handler

import (
	"net/http"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/auth"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/inventory"
	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/order"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// Currency is reported alongside quotes.
	Currency string
	// WebhookSecret signs payment provider callbacks. Callbacks are rejected
	// while it is empty.
	WebhookSecret []byte
	// APIKeyPepper is the HMAC key admin API keys are hashed under.
	APIKeyPepper []byte
}

// Handler serves the storefront checkout and admin endpoints.
type Handler struct {
	orders  *order.Service
	ledger  *inventory.Ledger
	apikeys auth.Repository

	currency      string
	webhookSecret []byte
	pepper        []byte
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	orders *order.Service,
	ledger *inventory.Ledger,
	apikeys auth.Repository,
) *Handler {
	return &Handler{
		orders:        orders,
		ledger:        ledger,
		apikeys:       apikeys,
		currency:      cfg.Currency,
		webhookSecret: cfg.WebhookSecret,
		pepper:        cfg.APIKeyPepper,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/checkout", h.PlaceOrder)
	mux.HandleFunc("POST /api/checkout/quote", h.Quote)
	mux.HandleFunc("POST /api/payments/callback", h.PaymentCallback)

	mux.Handle("GET /api/admin/orders/{id}", h.requireScope(auth.ScopeOrdersRead, h.GetOrder))
	mux.Handle("POST /api/admin/orders/{id}/status", h.requireScope(auth.ScopeOrdersWrite, h.UpdateOrderStatus))
	mux.Handle("POST /api/admin/stock", h.requireScope(auth.ScopeStockWrite, h.ChangeStock))
	mux.Handle("GET /api/admin/stock/{variantId}/events", h.requireScope(auth.ScopeStockRead, h.StockEvents))
}
