package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/models"
	"github.com/taskdeck/taskdeck-api/internal/ratelimit"
	"github.com/taskdeck/taskdeck-api/internal/request"
	"go.uber.org/zap"
)

// fakeLimiter records the last check and returns a canned result.
type fakeLimiter struct {
	result   models.RateLimitResult
	lastKind ratelimit.Kind
	lastKey  string
}

func (f *fakeLimiter) Check(ctx context.Context, kind ratelimit.Kind, key string) models.RateLimitResult {
	f.lastKind = kind
	f.lastKey = key
	return f.result
}

func allowedResult() models.RateLimitResult {
	return models.RateLimitResult{
		Allowed:   true,
		Limit:     60,
		Remaining: 42,
		Reset:     time.Now().Add(30 * time.Second),
	}
}

func deniedResult() models.RateLimitResult {
	reset := time.Now().Add(25 * time.Second)
	return models.RateLimitResult{
		Allowed:    false,
		Limit:      20,
		Remaining:  0,
		Reset:      reset,
		RetryAfter: 25 * time.Second,
	}
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_AllowedRequestCarriesHeaders(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{result: allowedResult()}
	var called bool
	handler := RateLimit(limiter, false, zap.NewNop())(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.RemoteAddr = "203.0.113.5:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("handler was not invoked for an allowed request")
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want %q", got, "60")
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "42" {
		t.Errorf("X-RateLimit-Remaining = %q, want %q", got, "42")
	}
	if got := rec.Header().Get("Retry-After"); got != "" {
		t.Errorf("Retry-After = %q on an allowed request", got)
	}
}

func TestRateLimit_DeniedRequest(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{result: deniedResult()}
	var called bool
	handler := RateLimit(limiter, false, zap.NewNop())(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", nil)
	req.RemoteAddr = "203.0.113.5:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Fatal("handler was invoked for a denied request")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Retry-After"); got != "25" {
		t.Errorf("Retry-After = %q, want %q", got, "25")
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset missing on denial")
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("denial body is not JSON: %v", err)
	}
	if body["success"] != false {
		t.Errorf("body success = %v, want false", body["success"])
	}
	if body["error"] != "Rate limit exceeded" {
		t.Errorf("body error = %v", body["error"])
	}
	if body["retryAfter"] != float64(25) {
		t.Errorf("body retryAfter = %v, want 25", body["retryAfter"])
	}
}

func TestRateLimit_KindSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		want   ratelimit.Kind
	}{
		{name: "GET uses read", method: http.MethodGet, want: ratelimit.KindRead},
		{name: "HEAD uses read", method: http.MethodHead, want: ratelimit.KindRead},
		{name: "POST uses write", method: http.MethodPost, want: ratelimit.KindWrite},
		{name: "PUT uses write", method: http.MethodPut, want: ratelimit.KindWrite},
		{name: "DELETE uses write", method: http.MethodDelete, want: ratelimit.KindWrite},
	}

	for _, tt := range tests {
		tt := tt // shadow for parallel subtest (Go 1.21)
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			limiter := &fakeLimiter{result: allowedResult()}
			var called bool
			handler := RateLimit(limiter, false, zap.NewNop())(okHandler(&called))

			req := httptest.NewRequest(tt.method, "/api/tasks", nil)
			req.RemoteAddr = "203.0.113.5:51234"
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if limiter.lastKind != tt.want {
				t.Errorf("kind = %q, want %q", limiter.lastKind, tt.want)
			}
		})
	}
}

func TestRateLimitAuth_UsesAuthKind(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{result: allowedResult()}
	var called bool
	handler := RateLimitAuth(limiter, false, zap.NewNop())(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.RemoteAddr = "203.0.113.5:51234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if limiter.lastKind != ratelimit.KindAuth {
		t.Errorf("kind = %q, want %q", limiter.lastKind, ratelimit.KindAuth)
	}
}

func TestRateLimit_KeyCombinesOwnerAndIP(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{result: allowedResult()}
	var called bool
	handler := RateLimit(limiter, false, zap.NewNop())(okHandler(&called))

	user := &models.User{ID: uuid.New()}
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.RemoteAddr = "203.0.113.5:51234"
	req = req.WithContext(request.WithUser(req.Context(), user))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	want := user.ID.String() + ":203.0.113.5"
	if limiter.lastKey != want {
		t.Errorf("key = %q, want %q", limiter.lastKey, want)
	}
}

func TestRateLimit_ForwardedHeaderRequiresTrust(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		trustProxy bool
		wantKey    string
	}{
		{name: "untrusted proxy header ignored", trustProxy: false, wantKey: "203.0.113.5"},
		{name: "trusted proxy header honored", trustProxy: true, wantKey: "198.51.100.7"},
	}

	for _, tt := range tests {
		tt := tt // shadow for parallel subtest (Go 1.21)
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			limiter := &fakeLimiter{result: allowedResult()}
			var called bool
			handler := RateLimit(limiter, tt.trustProxy, zap.NewNop())(okHandler(&called))

			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			req.RemoteAddr = "203.0.113.5:51234"
			req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if limiter.lastKey != tt.wantKey {
				t.Errorf("key = %q, want %q", limiter.lastKey, tt.wantKey)
			}
		})
	}
}
