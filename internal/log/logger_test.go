package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentLedger, Output: &buf})
	l.Info("hello")
	if !strings.Contains(buf.String(), "component=ledger") {
		t.Fatalf("expected component field, got %q", buf.String())
	}

	buf.Reset()
	l.WithComponent(ComponentStorage).Info("again")
	out := buf.String()
	if !strings.Contains(out, "component=storage") || strings.Contains(out, "component=ledger") {
		t.Fatalf("expected only storage component, got %q", out)
	}
}

func TestOp(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Output: &buf})
	l.Op(context.Background(), OpAppend, nil)
	if !strings.Contains(buf.String(), "level=DEBUG") {
		t.Fatalf("expected debug record, got %q", buf.String())
	}
	buf.Reset()
	l.Op(context.Background(), OpAppend, errors.New("boom"))
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "error=boom") {
		t.Fatalf("expected warn record with error, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "": slog.LevelInfo, "WARN": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("%q expected %v, got %v (err=%v)", in, want, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentHTTP, Output: &buf})

	var seen *Logger
	h := Middleware(l, func(*http.Request) string { return "req-1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/expenses", nil))

	if seen == nil || seen.Component() != ComponentHTTP {
		t.Fatalf("expected request logger in context")
	}
	out := buf.String()
	if !strings.Contains(out, "status_code=404") || !strings.Contains(out, "request_id=req-1") || !strings.Contains(out, "level=WARN") {
		t.Fatalf("unexpected log output %q", out)
	}
}
