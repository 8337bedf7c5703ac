package middleware

import (
	"log/slog"
	"net/http"

	"github.com/pathwise/pathwise-api/internal/api/shared"
)

// TraceMiddleware stamps a trace ID into the request context. It runs
// before the other middleware so every log line and error response for
// the request carries the same ID.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())

		slog.Debug("request started",
			"trace_id", shared.GetTraceID(ctx),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
