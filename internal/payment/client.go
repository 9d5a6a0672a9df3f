// Package payment talks to the external payment provider: it creates payment
// intents for card orders and verifies the signature of provider callbacks.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// ErrProvider is returned when the provider rejects a request.
var ErrProvider = errors.New("payment provider error")

// IntentRequest asks the provider to prepare a payment.
type IntentRequest struct {
	OrderID     string
	Amount      int64
	Currency    string
	Description string
	// IdempotencyKey makes retried requests for the same order safe.
	IdempotencyKey string
}

// Intent is a provider-side payment awaiting customer action.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// Config configures the provider client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// TracerProvider traces outbound calls. The global provider is used when
	// nil.
	TracerProvider trace.TracerProvider
}

// Client is a REST client for the payment provider.
type Client struct {
	http *resty.Client
}

// NewClient creates a Client. Outbound requests are traced with otelhttp.
func NewClient(cfg Config) *Client {
	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport, opts...)).
		SetHeader("Accept", "application/json")
	return &Client{http: rc}
}

type intentBody struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent creates a payment intent for an order.
func (c *Client) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	var (
		out    Intent
		apiErr errorBody
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.IdempotencyKey).
		SetBody(intentBody{
			Amount:      req.Amount,
			Currency:    req.Currency,
			Description: req.Description,
			Metadata:    map[string]string{"order_id": req.OrderID},
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/payment_intents")
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	if resp.IsError() {
		return nil, errors.Wrapf(ErrProvider, "create payment intent: status %d: %s %s",
			resp.StatusCode(), apiErr.Error.Type, apiErr.Error.Message)
	}
	if out.ID == "" {
		return nil, errors.Wrap(ErrProvider, "create payment intent: empty intent id")
	}
	return &out, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the hex HMAC-SHA256 of body
// under secret. The comparison is constant-time.
func VerifySignature(secret, body []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
