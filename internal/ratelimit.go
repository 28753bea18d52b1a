package internal

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// rateLimiter is a token bucket per client address.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rps       float64
	burst     float64
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimitHandler limits each client to rps requests per second with the
// given burst. Buckets idle for longer than ttl are dropped. A non-positive
// rps disables limiting.
func NewRateLimitHandler(next http.Handler, rps int64, burst int64, ttl time.Duration) http.Handler {
	if rps <= 0 {
		return next
	}
	limiter := newRateLimiter(rps, burst, ttl)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.allow(clientIP(r)) {
			IncRejected("rate_limited")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newRateLimiter(rps int64, burst int64, ttl time.Duration) *rateLimiter {
	l := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     float64(rps),
		burst:   float64(burst),
		ttl:     ttl,
		now:     time.Now,
	}
	if l.burst < 1 {
		l.burst = l.rps
	}
	if l.burst < 1 {
		l.burst = 1
	}
	return l
}

func (l *rateLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.burst - 1, seen: now}
		return true
	}

	b.tokens += now.Sub(b.seen).Seconds() * l.rps
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep runs at most once per ttl. Caller holds l.mu.
func (l *rateLimiter) sweep(now time.Time) {
	if l.ttl <= 0 || now.Sub(l.lastSweep) < l.ttl {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.seen) > l.ttl {
			delete(l.buckets, key)
		}
	}
}

// clientIP reads RemoteAddr, which chi's RealIP middleware has already
// rewritten from X-Forwarded-For / X-Real-IP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
