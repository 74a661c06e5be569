package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return false, 0, time.Time{}, f.err
	}
	remaining := 4
	if !f.allowed {
		remaining = 0
	}
	return f.allowed, remaining, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), nil
}

func (f *fakeLimiter) Limit() int { return 5 }

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name    string
		limiter *fakeLimiter
		want    int
	}{
		{name: "allowed", limiter: &fakeLimiter{allowed: true}, want: http.StatusOK},
		{name: "exceeded", limiter: &fakeLimiter{allowed: false}, want: http.StatusTooManyRequests},
		{name: "limiter down fails open", limiter: &fakeLimiter{err: errors.New("redis down")}, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRateLimitMiddleware(tt.limiter).Limit(okHandler)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/text", nil)
			req.RemoteAddr = "10.0.0.7:51234"
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, []string{"10.0.0.7"}, tt.limiter.keys)
		})
	}
}

func TestRateLimit_Headers(t *testing.T) {
	h := NewRateLimitMiddleware(&fakeLimiter{allowed: true}).Limit(okHandler)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "2026-01-01T00:01:00Z", rec.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimit_NilLimiterPassesThrough(t *testing.T) {
	h := NewRateLimitMiddleware(nil).Limit(okHandler)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Success bool              `json:"success"`
		Error   map[string]string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "Internal server error", body.Error["message"])
	assert.Len(t, body.Error["error_id"], 36)
}

func TestMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	h := Metrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "404")))
}
