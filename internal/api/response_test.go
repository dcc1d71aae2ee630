package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response envelope: %v", err)
	}
	return env
}

func TestWriteJSONWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"name": "test"})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	env := decodeEnvelope(t, w)
	if env.Error != "" {
		t.Errorf("error = %q, want empty", env.Error)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data has type %T, want map", env.Data)
	}
	if data["name"] != "test" {
		t.Errorf("data.name = %v, want test", data["name"])
	}
}

func TestWriteJSONNilData(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, nil)

	env := decodeEnvelope(t, w)
	if env.Data != nil {
		t.Errorf("data = %v, want nil", env.Data)
	}
	if env.Error != "" {
		t.Errorf("error = %q, want empty", env.Error)
	}
}

func TestWriteJSONStatusPassthrough(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, map[string]int{"id": 1})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "invalid input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	env := decodeEnvelope(t, w)
	if env.Error != "invalid input" {
		t.Errorf("error = %q, want invalid input", env.Error)
	}
	if env.Data != nil {
		t.Errorf("data = %v, want nil", env.Data)
	}
}

func TestEnvelopeOmitsEmptyError(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, "ok")

	if body := w.Body.String(); strings.Contains(body, `"error"`) {
		t.Errorf("success body should omit the error field, got %s", body)
	}
}

func TestReadJSON(t *testing.T) {
	var dst struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"test","value":42}`))
	if msg := readJSON(r, &dst); msg != "" {
		t.Fatalf("readJSON returned %q", msg)
	}
	if dst.Name != "test" || dst.Value != 42 {
		t.Errorf("decoded %+v, want {test 42}", dst)
	}
}

func TestReadJSONRejectsBadBodies(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", "request body must not be empty"},
		{"malformed", "{bad", "malformed json"},
		{"unknown field", `{"extra":"field"}`, "unknown field"},
		{"trailing object", `{}{"b":2}`, "request body must contain a single json object"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst struct{}
			msg := readJSON(r, &dst)
			if !strings.HasPrefix(msg, tc.want) {
				t.Errorf("readJSON(%q) = %q, want prefix %q", tc.body, msg, tc.want)
			}
		})
	}
}

func TestReadJSONWrongFieldType(t *testing.T) {
	var dst struct {
		Value int `json:"value"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"value":"not_a_number"}`))
	if msg := readJSON(r, &dst); msg == "" {
		t.Error("type mismatch did not produce an error")
	}
}

func TestParsePagination(t *testing.T) {
	cases := []struct {
		name       string
		url        string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "/items", defaultLimit, 0},
		{"explicit", "/items?limit=50&offset=10", 50, 10},
		{"clamped", "/items?limit=500", maxLimit, 0},
		{"zero offset", "/items?offset=0", defaultLimit, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.url, nil)
			p, msg := parsePagination(r)
			if msg != "" {
				t.Fatalf("parsePagination returned %q", msg)
			}
			if p.Limit != tc.wantLimit || p.Offset != tc.wantOffset {
				t.Errorf("got limit=%d offset=%d, want limit=%d offset=%d",
					p.Limit, p.Offset, tc.wantLimit, tc.wantOffset)
			}
		})
	}
}

func TestParsePaginationRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{"limit non-numeric", "/items?limit=abc", "limit must be a positive integer"},
		{"limit zero", "/items?limit=0", "limit must be a positive integer"},
		{"limit negative", "/items?limit=-5", "limit must be a positive integer"},
		{"offset non-numeric", "/items?offset=abc", "offset must be a non-negative integer"},
		{"offset negative", "/items?offset=-1", "offset must be a non-negative integer"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.url, nil)
			if _, msg := parsePagination(r); msg != tc.want {
				t.Errorf("parsePagination = %q, want %q", msg, tc.want)
			}
		})
	}
}

func TestPaginatedResponseShape(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  []string{"a", "b"},
		Total:  10,
		Limit:  20,
		Offset: 0,
	})

	env := decodeEnvelope(t, w)
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data has type %T, want map", env.Data)
	}
	if data["total"] != float64(10) || data["limit"] != float64(20) || data["offset"] != float64(0) {
		t.Errorf("unexpected pagination fields: %v", data)
	}
	items, ok := data["items"].([]any)
	if !ok {
		t.Fatalf("items has type %T, want array", data["items"])
	}
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}
}

func TestEnvelopeMarshalling(t *testing.T) {
	b, err := json.Marshal(envelope{Data: map[string]string{"id": "1"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"data"`) || strings.Contains(string(b), `"error"`) {
		t.Errorf("success envelope = %s", b)
	}

	b, err = json.Marshal(envelope{Error: "bad request"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"error":"bad request"`) {
		t.Errorf("error envelope = %s", b)
	}
}
