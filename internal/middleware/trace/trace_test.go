package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareSetsRequestID(t *testing.T) {
	var seen string
	h := NewMiddleware(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q", seen)
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Fatalf("response header = %q, want %q", got, seen)
	}
}

func TestMiddlewareKeepsIncomingID(t *testing.T) {
	tests := []struct {
		incoming string
		keep     bool
	}{
		{"abc-123", true},
		{"has space", false},
		{strings.Repeat("x", 65), false},
		{"", false},
	}
	for _, tt := range tests {
		var seen string
		h := NewMiddleware(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestID(r)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, tt.incoming)
		h.ServeHTTP(httptest.NewRecorder(), req)

		if (seen == tt.incoming) != tt.keep {
			t.Errorf("incoming %q: got %q, keep=%v", tt.incoming, seen, tt.keep)
		}
	}
}

func TestMiddlewareMetrics(t *testing.T) {
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" })
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	for _, p := range []string{"/ok", "/fail", "/ok"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	got := m.GetMetrics()
	if got.TotalRequests != 3 || got.FailedRequests != 1 {
		t.Fatalf("metrics = %+v", got)
	}
}
