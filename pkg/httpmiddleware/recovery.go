package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// Recovery turns a panic into a 500 InternalError response. It sits outside
// InjectLogger, so it logs through lg and picks the request id off the
// response headers when RequestID already ran.
func Recovery(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				lg.Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", w.Header().Get("X-Request-ID")),
					zap.Stack("stack"),
				)
				w.Header().Set("Connection", "close")
				writeProblem(w, http.StatusInternalServerError, "InternalError", "internal server error", false)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// writeProblem writes the API error envelope for failures raised before a
// request reaches its handler.
func writeProblem(w http.ResponseWriter, status int, kind, message string, retryable bool) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("kind", func(e *jx.Encoder) { e.Str(kind) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		e.Field("retryable", func(e *jx.Encoder) { e.Bool(retryable) })
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
