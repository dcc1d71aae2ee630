package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig controls per-client-IP request throttling.
type RateLimitConfig struct {
	// Rate is the sustained requests-per-second allowance for one IP.
	Rate rate.Limit
	// Burst is how far above the sustained rate a single IP may spike.
	Burst int
	// CleanupInterval is how often idle visitors are swept.
	CleanupInterval time.Duration
	// MaxAge is the idle time after which a visitor is evicted.
	MaxAge time.Duration
}

// DefaultRateLimitConfig covers general API traffic: 20 req/s, burst 40.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:            rate.Limit(20),
		Burst:           40,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// AuthRateLimitConfig covers login and token endpoints: 5 req/s, burst 10.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:            rate.Limit(5),
		Burst:           10,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

// IPRateLimiter keeps one token bucket per client IP and evicts
// buckets that have gone idle.
type IPRateLimiter struct {
	cfg  RateLimitConfig
	done chan struct{}

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewIPRateLimiter builds a limiter and starts its sweep goroutine.
// Call Stop when the limiter is no longer needed.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	rl := &IPRateLimiter{
		cfg:      cfg,
		done:     make(chan struct{}),
		visitors: make(map[string]*visitor),
	}
	go rl.sweepLoop()
	return rl
}

// Allow reports whether a request from ip fits within its bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst)}
		rl.visitors[ip] = v
	}
	v.seen = time.Now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

// Stop ends the sweep goroutine.
func (rl *IPRateLimiter) Stop() {
	close(rl.done)
}

func (rl *IPRateLimiter) sweepLoop() {
	t := time.NewTicker(rl.cfg.CleanupInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			rl.sweep()
		case <-rl.done:
			return
		}
	}
}

// sweep drops visitors idle for longer than MaxAge.
func (rl *IPRateLimiter) sweep() {
	cutoff := time.Now().Add(-rl.cfg.MaxAge)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	evicted := 0
	for ip, v := range rl.visitors {
		if v.seen.Before(cutoff) {
			delete(rl.visitors, ip)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("rate limiter sweep", "evicted", evicted, "tracked", len(rl.visitors))
	}
}

// RateLimit throttles requests by client IP. Requests over the limit
// get a 429 with a Retry-After hint.
func RateLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractIP(r)
			if !limiter.Allow(ip) {
				slog.Warn("rate limit exceeded",
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", "1")
				writeEnvelopeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractIP strips the port from RemoteAddr. chi's RealIP middleware
// must run earlier so RemoteAddr reflects X-Forwarded-For behind a
// reverse proxy.
func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
