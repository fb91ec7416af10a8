package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

type countingMetrics struct {
	rejected map[string]int
}

func (m *countingMetrics) RecordRateLimited(tier string) {
	m.rejected[tier]++
}

func TestIPRateLimiterPerIP(t *testing.T) {
	m := &countingMetrics{rejected: map[string]int{}}

	rl := NewIPRateLimiter(tierPublic, 2, m)
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	request := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remoteAddr

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec
	}

	assert.Equal(t, http.StatusNoContent, request("10.0.0.1:1000").Code)
	// Same host, different source port.
	assert.Equal(t, http.StatusNoContent, request("10.0.0.1:1001").Code)

	rejected := request("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.Equal(t, "application/json", rejected.Header().Get("Content-Type"))
	assert.NotEmpty(t, rejected.Header().Get("Retry-After"))
	assert.Equal(t, 1, m.rejected[tierPublic])

	// Another visitor has its own budget.
	assert.Equal(t, http.StatusNoContent, request("10.0.0.2:1000").Code)
	// RealIP rewrites RemoteAddr without a port.
	assert.Equal(t, http.StatusNoContent, request("10.0.0.3").Code)
}

func TestRetryAfter(t *testing.T) {
	// One request per minute, already spent.
	limiter := rate.NewLimiter(rate.Limit(1.0/60.0), 1)
	assert.True(t, limiter.Allow())

	secs := retryAfter(limiter)
	assert.GreaterOrEqual(t, secs, 59)
	assert.LessOrEqual(t, secs, 60)

	// Retry-After does not consume the next token.
	assert.Equal(t, secs, retryAfter(limiter))

	// A zero burst never admits anything.
	assert.Equal(t, 60, retryAfter(rate.NewLimiter(1, 0)))
}

func TestIPRateLimiterEvictIdle(t *testing.T) {
	rl := NewIPRateLimiter(tierAuthenticated, 60, nil)
	defer rl.Stop()

	rl.limiterFor("10.0.0.1")
	rl.limiterFor("10.0.0.2")

	rl.mu.Lock()
	rl.visitors["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.evictIdle(time.Now().Add(-visitorTTL))

	rl.mu.Lock()
	defer rl.mu.Unlock()

	assert.NotContains(t, rl.visitors, "10.0.0.1")
	assert.Contains(t, rl.visitors, "10.0.0.2")
}
