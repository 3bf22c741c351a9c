package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/dskow/devtoken/internal/apierror"
	"github.com/dskow/devtoken/internal/metrics"
)

// Recovery turns a handler panic into a 500 JSON error and counts it in
// devtoken_stub_panics_total. Mount it inside RequestID so the log line and
// the error body carry the same request_id the client sees in X-Request-ID.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
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
				metrics.StubPanics.Inc()
				logger.Error("stub handler panicked",
					"error", rec,
					"request_id", GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"query", r.URL.RawQuery,
					"stack", string(debug.Stack()),
				)
				apierror.WriteJSON(w, r, http.StatusInternalServerError, apierror.InternalError, "stub backend failed to handle the request")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
