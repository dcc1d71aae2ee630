package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func logOneRequest(t *testing.T, method, path string, h http.HandlerFunc) map[string]any {
	t.Helper()
	buf := captureLogs(t)
	rr := httptest.NewRecorder()
	StructuredLogger(h).ServeHTTP(rr, httptest.NewRequest(method, path, nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parsing log output: %v", err)
	}
	return entry
}

func TestStructuredLoggerImplicitOK(t *testing.T) {
	entry := logOneRequest(t, http.MethodGet, "/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"status":"ok"}}`))
	})

	if entry["method"] != "GET" || entry["path"] != "/api/v1/health" {
		t.Fatalf("logged %v %v", entry["method"], entry["path"])
	}
	// JSON numbers decode as float64.
	if entry["status"] != float64(200) {
		t.Fatalf("status = %v, want 200", entry["status"])
	}
	if entry["bytes"] != float64(24) {
		t.Fatalf("bytes = %v, want 24", entry["bytes"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Fatal("duration_ms missing")
	}
}

func TestStructuredLoggerExplicitStatus(t *testing.T) {
	entry := logOneRequest(t, http.MethodPost, "/api/v1/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if entry["status"] != float64(404) {
		t.Fatalf("status = %v, want 404", entry["status"])
	}
}

func TestStructuredLoggerFirstStatusWins(t *testing.T) {
	entry := logOneRequest(t, http.MethodGet, "/x", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.WriteHeader(http.StatusInternalServerError)
	})
	if entry["status"] != float64(201) {
		t.Fatalf("status = %v, want 201", entry["status"])
	}
}

func TestStructuredLoggerNoOutputStillLogs200(t *testing.T) {
	entry := logOneRequest(t, http.MethodDelete, "/api/v1/domains/d1", func(w http.ResponseWriter, r *http.Request) {})
	if entry["status"] != float64(200) {
		t.Fatalf("status = %v, want 200", entry["status"])
	}
	if entry["bytes"] != float64(0) {
		t.Fatalf("bytes = %v, want 0", entry["bytes"])
	}
}
