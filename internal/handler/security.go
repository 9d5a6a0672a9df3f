package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/auth"
)

type apiKeyCtxKey struct{}

// apiKeyFromContext returns the admin key that authenticated the request.
func apiKeyFromContext(ctx context.Context) (*auth.APIKey, bool) {
	k, ok := ctx.Value(apiKeyCtxKey{}).(*auth.APIKey)
	return k, ok
}

// requireScope authenticates X-API-Key by its peppered HMAC hash and checks
// that the key grants scope.
func (h *Handler) requireScope(scope string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-API-Key")
		if raw == "" {
			writeAPIError(w, apiError{http.StatusUnauthorized, KindUnauthorized, "missing api key", false})
			return
		}

		hash := auth.HashKey(h.pepper, raw)
		key, err := h.apikeys.FindByHash(r.Context(), hash)
		if err != nil {
			if errors.Is(err, auth.ErrKeyNotFound) {
				writeAPIError(w, apiError{http.StatusUnauthorized, KindUnauthorized, "invalid api key", false})
				return
			}
			writeError(w, r, errors.Wrap(err, "find api key"))
			return
		}
		// The store matched on hash; compare again in constant time in case
		// it matched loosely.
		if subtle.ConstantTimeCompare([]byte(hash), []byte(key.KeyHash)) != 1 {
			writeAPIError(w, apiError{http.StatusUnauthorized, KindUnauthorized, "invalid api key", false})
			return
		}
		if !key.HasScope(scope) {
			writeAPIError(w, apiError{http.StatusForbidden, KindForbidden, "api key lacks scope " + scope, false})
			return
		}

		lg := zctx.From(r.Context()).With(zap.String("api_key", key.Name))
		ctx := context.WithValue(zctx.Base(r.Context(), lg), apiKeyCtxKey{}, key)
		next(w, r.WithContext(ctx))
	})
}
