package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name       string
		apiKey     string
		header     string
		value      string
		wantStatus int
	}{
		{name: "disabled when no key configured", apiKey: "", wantStatus: http.StatusOK},
		{name: "missing key rejected", apiKey: "secret", wantStatus: http.StatusUnauthorized},
		{name: "wrong bearer rejected", apiKey: "secret", header: "Authorization", value: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "valid bearer accepted", apiKey: "secret", header: "Authorization", value: "Bearer secret", wantStatus: http.StatusOK},
		{name: "valid x-api-key accepted", apiKey: "secret", header: "X-API-Key", value: "secret", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Auth(tt.apiKey)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/spreads", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://dashboard.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/spreads", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/spreads", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin got allow-origin %q", got)
	}
}

type fakeLimiter struct {
	allowed bool
	err     error
	lastKey string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.lastKey = key
	return f.allowed, f.err
}

func TestRateLimit(t *testing.T) {
	t.Run("over limit returns 429", func(t *testing.T) {
		lim := &fakeLimiter{allowed: false}
		h := RateLimit(lim, 10, time.Minute)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/spreads", nil)
		req.RemoteAddr = "203.0.113.9:55000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
		}
		if got := rec.Header().Get("Retry-After"); got != "60" {
			t.Fatalf("Retry-After = %q, want 60", got)
		}
		if !strings.HasPrefix(lim.lastKey, "spreadwatch:ratelimit:") || !strings.HasSuffix(lim.lastKey, "203.0.113.9") {
			t.Fatalf("limiter key = %q", lim.lastKey)
		}
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		lim := &fakeLimiter{err: errors.New("redis down")}
		h := RateLimit(lim, 10, time.Minute)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/spreads", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("x-forwarded-for wins over remote addr", func(t *testing.T) {
		lim := &fakeLimiter{allowed: true}
		h := RateLimit(lim, 10, time.Minute)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/spreads", nil)
		req.RemoteAddr = "10.0.0.1:9999"
		req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if lim.lastKey != "spreadwatch:ratelimit:198.51.100.7" {
			t.Fatalf("limiter key = %q", lim.lastKey)
		}
	})
}

func TestLoggingRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such pair", http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/spreads/unknown", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := buf.String()
	if !strings.Contains(out, `"status":404`) {
		t.Fatalf("log line missing status: %s", out)
	}
	if !strings.Contains(out, `"path":"/api/spreads/unknown"`) {
		t.Fatalf("log line missing path: %s", out)
	}
}
