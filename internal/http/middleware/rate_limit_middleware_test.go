package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type erroringLimiter struct{}

func (erroringLimiter) Allow(context.Context, string, RateLimitPolicy) (Decision, error) {
	return Decision{}, errors.New("backend down")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func performRateLimited(h http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiterDeniesOverLimit(t *testing.T) {
	h := NewRateLimiter(2, time.Minute).Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		if rr := performRateLimited(h); rr.Code != http.StatusNoContent {
			t.Fatalf("request %d expected 204, got %d", i, rr.Code)
		}
	}
	rr := performRateLimited(h)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over limit, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on denial")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	h := NewRateLimiter(1, time.Minute).Middleware()(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.1:1111"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, first)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "10.0.0.2:2222"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, second)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("different client must not share the window, got %d", rr.Code)
	}
}

func TestRateLimiterFailClosedOnBackendError(t *testing.T) {
	rl := NewRateLimiterWithBackend(erroringLimiter{}, 10, time.Minute, FailClosed, "api", nil)
	rr := performRateLimited(rl.Middleware()(okHandler()))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("fail_closed must deny on backend error, got %d", rr.Code)
	}
}

func TestRateLimiterFailOpenOnBackendError(t *testing.T) {
	rl := NewRateLimiterWithBackend(erroringLimiter{}, 10, time.Minute, FailOpen, "api", nil)
	rr := performRateLimited(rl.Middleware()(okHandler()))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("fail_open must allow on backend error, got %d", rr.Code)
	}
}

func TestRateLimitHeadersOnAllow(t *testing.T) {
	h := NewRateLimiter(5, time.Minute).Middleware()(okHandler())
	rr := performRateLimited(h)

	if rr.Header().Get("X-RateLimit-Limit") != "5" {
		t.Fatalf("unexpected limit header %q", rr.Header().Get("X-RateLimit-Limit"))
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Fatalf("unexpected remaining header %q", rr.Header().Get("X-RateLimit-Remaining"))
	}
	if rr.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatal("expected reset header")
	}
}
