package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestLimiter(t *testing.T, r rate.Limit, burst int, maxAge time.Duration) *IPRateLimiter {
	t.Helper()
	rl := NewIPRateLimiter(RateLimitConfig{
		Rate:            r,
		Burst:           burst,
		CleanupInterval: time.Hour,
		MaxAge:          maxAge,
	})
	t.Cleanup(rl.Stop)
	return rl
}

func TestAllowEnforcesBurstPerIP(t *testing.T) {
	rl := newTestLimiter(t, rate.Limit(2), 2, time.Hour)

	if !rl.Allow("192.168.1.1") {
		t.Fatal("first request should pass")
	}
	if !rl.Allow("192.168.1.1") {
		t.Fatal("second request should pass, burst is 2")
	}
	if rl.Allow("192.168.1.1") {
		t.Fatal("third request should be throttled")
	}
	if !rl.Allow("192.168.1.2") {
		t.Fatal("a different IP has its own bucket")
	}
}

func TestSweepEvictsIdleVisitors(t *testing.T) {
	rl := newTestLimiter(t, rate.Limit(10), 10, 0)

	rl.Allow("10.0.0.1")

	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 1 {
		t.Fatalf("tracked visitors = %d, want 1", n)
	}

	rl.sweep()

	rl.mu.Lock()
	n = len(rl.visitors)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("tracked visitors after sweep = %d, want 0", n)
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	rl := newTestLimiter(t, rate.Limit(1), 1, time.Hour)

	handler := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/extensions", nil)
	req.RemoteAddr = "10.0.0.5:12345"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q, want %q", got, "1")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
}

func TestExtractIP(t *testing.T) {
	cases := []struct {
		remoteAddr string
		want       string
	}{
		{"192.168.1.1:8080", "192.168.1.1"},
		{"[::1]:8080", "::1"},
		{"10.0.0.1", "10.0.0.1"},
	}

	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tc.remoteAddr
		if got := extractIP(r); got != tc.want {
			t.Errorf("extractIP(%q) = %q, want %q", tc.remoteAddr, got, tc.want)
		}
	}
}
