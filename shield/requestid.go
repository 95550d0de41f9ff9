package shield

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/breakingchange/idgen"
	"github.com/hazyhaar/breakingchange/kit"
)

// RequestID tags each request with a fresh ID (context and X-Request-ID
// header, transport "http") and logs it once served.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := idgen.New()
			w.Header().Set("X-Request-ID", id)
			ctx := kit.WithRequestID(kit.WithTransport(r.Context(), "http"), id)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.Debug("shield: request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start))
		})
	}
}
