package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func limited(t *testing.T, rps float64, burst int) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return RateLimiter(ctx, RateLimitConfig{RequestsPerSecond: rps, Burst: burst})(okHandler())
}

func get(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	h := limited(t, 100, 10)
	for range 5 {
		rec := get(h, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	h := limited(t, 1, 2)
	for range 2 {
		require.Equal(t, http.StatusOK, get(h, "").Code)
	}

	rec := get(h, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.InDelta(t, 429.0, body["code"], 0.001)
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimiter_PerClientIsolation(t *testing.T) {
	h := limited(t, 1, 2)
	for range 2 {
		require.Equal(t, http.StatusOK, get(h, "10.0.0.1:1234").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(h, "10.0.0.1:5678").Code)
	assert.Equal(t, http.StatusOK, get(h, "10.0.0.2:1234").Code)
}

func TestLimiterSet_EvictsIdleClients(t *testing.T) {
	set := &limiterSet{cfg: RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute}, clients: map[string]*clientLimiter{}}
	now := time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC)
	set.get("10.0.0.1", now)
	set.get("10.0.0.2", now.Add(50*time.Second))

	set.evict(now.Add(90 * time.Second))
	assert.Len(t, set.clients, 1)
	assert.Contains(t, set.clients, "10.0.0.2")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{name: "IPv4 with port", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "IPv6 with port", remoteAddr: "[::1]:8080", want: "::1"},
		{name: "no port", remoteAddr: "10.0.0.7", want: "10.0.0.7"},
		{name: "forwarded header ignored", remoteAddr: "10.0.0.1:1", xff: "1.2.3.4", want: "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
