package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

// Logging emits request.start/request.complete and records route metrics.
// The route pattern is read after the handler so chi has resolved it.
func Logging(logg *logger.Logger, m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
				})
				logg.Debug(ctx, "request.start")
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))
			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.Observe(routePattern(r), r.Method, status, elapsed)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"status":      status,
					"bytes":       ww.BytesWritten(),
					"duration_ms": elapsed.Milliseconds(),
				})
				logg.Info(ctx, "request.complete")
			}
		})
	}
}
