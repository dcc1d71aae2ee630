package middleware

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func corsRequest(t *testing.T, origins []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	handler := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if method == http.MethodOptions {
			t.Fatal("preflight must not reach the next handler")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/v1/health", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCORSListedOrigin(t *testing.T) {
	rr := corsRequest(t, []string{"https://admin.example.com"}, http.MethodGet, "https://admin.example.com")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example.com" {
		t.Fatalf("Allow-Origin = %q", got)
	}
	if got := rr.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("Vary = %q, want Origin", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("Allow-Credentials = %q, want true", got)
	}
}

func TestCORSUnlistedOrigin(t *testing.T) {
	rr := corsRequest(t, []string{"https://admin.example.com"}, http.MethodGet, "https://evil.example.com")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin = %q, want unset", got)
	}
}

func TestCORSWildcard(t *testing.T) {
	rr := corsRequest(t, []string{"*"}, http.MethodGet, "https://anything.example.com")

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin = %q, want *", got)
	}
	if got := rr.Header().Get("Vary"); got != "" {
		t.Fatalf("Vary = %q, want unset for wildcard", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	rr := corsRequest(t, []string{"https://admin.example.com"}, http.MethodOptions, "https://admin.example.com")

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("preflight is missing Allow-Methods")
	}
	if got := rr.Header().Get("Access-Control-Max-Age"); got != "300" {
		t.Fatalf("Max-Age = %q, want 300", got)
	}
}

func TestCORSNoOriginHeader(t *testing.T) {
	rr := corsRequest(t, []string{"https://admin.example.com"}, http.MethodGet, "")

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin = %q, want unset without Origin", got)
	}
}

func TestCORSNoConfiguredOrigins(t *testing.T) {
	rr := corsRequest(t, nil, http.MethodGet, "https://admin.example.com")

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin = %q, want unset with no configured origins", got)
	}
}

func TestCORSSecondListedOrigin(t *testing.T) {
	origins := []string{"https://admin.example.com", "https://dev.example.com"}
	for _, origin := range origins {
		rr := corsRequest(t, origins, http.MethodGet, origin)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != origin {
			t.Fatalf("Allow-Origin = %q, want %q", got, origin)
		}
	}
}

func TestParseCORSOrigins(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"*", []string{"*"}},
		{"https://example.com", []string{"https://example.com"}},
		{"https://a.com, https://b.com , https://c.com", []string{"https://a.com", "https://b.com", "https://c.com"}},
		{"https://a.com,,https://b.com", []string{"https://a.com", "https://b.com"}},
	}

	for _, tc := range cases {
		if got := ParseCORSOrigins(tc.raw); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ParseCORSOrigins(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
