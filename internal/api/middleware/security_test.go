package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func runSecured(t *testing.T, tlsEnabled bool) *httptest.ResponseRecorder {
	t.Helper()
	handler := SecurityHeaders(tlsEnabled)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/domains", nil))
	return rr
}

func TestSecurityHeaders(t *testing.T) {
	rr := runSecured(t, false)

	want := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"X-XSS-Protection":        "0",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": apiCSP,
		"Cache-Control":           "no-store",
	}
	for header, v := range want {
		if got := rr.Header().Get(header); got != v {
			t.Errorf("%s = %q, want %q", header, got, v)
		}
	}
	if !strings.Contains(rr.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'") {
		t.Errorf("CSP missing frame-ancestors: %s", rr.Header().Get("Content-Security-Policy"))
	}
}

func TestSecurityHeadersHSTSOnlyWithTLS(t *testing.T) {
	if got := runSecured(t, false).Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("HSTS sent without TLS: %q", got)
	}
	got := runSecured(t, true).Header().Get("Strict-Transport-Security")
	if got != "max-age=63072000; includeSubDomains" {
		t.Fatalf("HSTS = %q", got)
	}
}

func TestSecurityHeadersPassThrough(t *testing.T) {
	called := false
	handler := SecurityHeaders(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/extensions", nil))

	if !called {
		t.Fatal("next handler not called")
	}
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
}
