package middleware

import (
	"net/http"
	"time"

	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/go-chi/chi/v5/middleware"
)

// Metrics records request counts and latency
func Metrics(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequest(r.Method, status, time.Since(start))
		})
	}
}
