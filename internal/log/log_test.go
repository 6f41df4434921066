package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestJSONLoggerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf}).WithComponent(ComponentFinance)

	l.Info("Transaction recorded", FieldCustomerID, "c1")
	l.Debug("hidden")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("output is not a single JSON line: %q", buf.String())
	}
	if line[FieldComponent] != ComponentFinance || line[FieldCustomerID] != "c1" {
		t.Fatalf("unexpected fields %v", line)
	}
}

func TestMiddlewareChain(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf})

	h := Middleware(base)(
		RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
			ComponentMiddleware(ComponentHTTP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				l := FromContext(r.Context())
				if l.Component() != ComponentHTTP {
					t.Errorf("component = %q", l.Component())
				}
				l.InfoContext(r.Context(), "handled")
			}))))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	out := buf.String()
	if !strings.Contains(out, "request_id=req_1") || !strings.Contains(out, "component=http") {
		t.Fatalf("log line missing context: %q", out)
	}
}

func TestFromContextFallback(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" || l.Logger == nil {
		t.Fatalf("unexpected fallback logger %+v", l)
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf, Component: ComponentFinance}))

	sl.LogTransactionRecorded(context.Background(), "t1", "c1", "revenue", 500, "x")
	sl.LogError(context.Background(), "Delete failed", errors.New("boom"), OpDelete, nil)

	out := buf.String()
	for _, want := range []string{"transaction_id=t1", "amount=500", "actor_id=x", "error=boom", "operation=delete"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestWithErrorNil(t *testing.T) {
	if _, ok := NewFields().WithError(nil)[FieldError]; ok {
		t.Fatal("nil error added a field")
	}
}
