package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/scry-assess/internal/api/shared"
	"github.com/phrazzld/scry-assess/internal/platform/logger"
)

// TraceHeader echoes the request trace id to clients.
const TraceHeader = "X-Trace-ID"

// Trace assigns a trace id to the request and stores a request-scoped logger
// carrying it. It must run before any middleware that logs.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			traceID := shared.GetTraceID(ctx)

			log := base.With(slog.String("trace_id", traceID))
			ctx = logger.WithLogger(ctx, log)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path))

			w.Header().Set(TraceHeader, traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
