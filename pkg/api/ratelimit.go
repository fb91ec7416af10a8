package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Rate limit tiers.
	tierPublic        = "public"
	tierAuthenticated = "authenticated"

	// visitorTTL is how long an idle visitor keeps its limiter.
	visitorTTL = 10 * time.Minute
)

// RateLimitMetrics records rejected requests.
type RateLimitMetrics interface {
	RecordRateLimited(tier string)
}

// IPRateLimiter limits the requests of each client IP within one tier of
// endpoints. The budget refills continuously and allows a burst of one
// minute's worth of requests.
type IPRateLimiter struct {
	tier    string
	limit   rate.Limit
	burst   int
	metrics RateLimitMetrics

	mu       sync.Mutex
	visitors map[string]*visitor

	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a limiter for tier and starts evicting idle
// visitors in the background. m may be nil.
func NewIPRateLimiter(tier string, requestsPerMinute int, m RateLimitMetrics) *IPRateLimiter {
	l := &IPRateLimiter{
		tier:     tier,
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    requestsPerMinute,
		metrics:  m,
		visitors: make(map[string]*visitor, 256),
		stop:     make(chan struct{}),
	}

	go l.evictLoop()

	return l
}

// Stop ends the eviction goroutine.
func (l *IPRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *IPRateLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}

	v.lastSeen = time.Now()

	return v.limiter
}

// Middleware rejects requests from clients that used up their budget with
// 429 and a Retry-After header.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := l.limiterFor(clientIP(r))

		if limiter.Allow() {
			next.ServeHTTP(w, r)

			return
		}

		if l.metrics != nil {
			l.metrics.RecordRateLimited(l.tier)
		}

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter(limiter)))
		writeErrorBody(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// retryAfter returns the whole seconds until limiter admits the next request.
func retryAfter(limiter *rate.Limiter) int {
	res := limiter.Reserve()
	if !res.OK() {
		return int(time.Minute.Seconds())
	}

	delay := res.Delay()
	res.Cancel()

	return max(1, int(math.Ceil(delay.Seconds())))
}

// clientIP strips the port chi's RealIP leaves in place when no proxy header
// was present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func (l *IPRateLimiter) evictLoop() {
	ticker := time.NewTicker(visitorTTL)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle(time.Now().Add(-visitorTTL))
		}
	}
}

// evictIdle drops visitors not seen since cutoff.
func (l *IPRateLimiter) evictIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}
