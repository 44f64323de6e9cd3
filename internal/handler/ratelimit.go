package handler

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Ops routes allow a burst of OpsBurst requests per client, refilled at
// OpsRate per second. Repeated token guessing is throttled the same way.
const (
	OpsRate  = 1.0
	OpsBurst = 20
)

const staleAfter = 10 * time.Minute

// RateLimiter is a per-client token bucket. Idle clients are forgotten
// during later calls, so no background goroutine is needed.
type RateLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*allowance
	lastSweep time.Time
}

type allowance struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter creates a limiter refilling rate tokens per second up to burst.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	return &RateLimiter{
		rate:    rate,
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*allowance),
	}
}

// Allow spends one token for key and reports whether one was available.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > staleAfter {
		for k, a := range l.clients {
			if now.Sub(a.seen) > staleAfter {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	a, ok := l.clients[key]
	if !ok {
		a = &allowance{tokens: l.burst, seen: now}
		l.clients[key] = a
	}
	a.tokens = min(a.tokens+now.Sub(a.seen).Seconds()*l.rate, l.burst)
	a.seen = now

	if a.tokens < 1 {
		return false
	}
	a.tokens--
	return true
}

// Limit rejects requests with 429 once the client's bucket is empty.
func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
