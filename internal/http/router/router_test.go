package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamdani2020/edagent-auth/internal/health"
	"github.com/hamdani2020/edagent-auth/internal/http/handler"
	"github.com/hamdani2020/edagent-auth/internal/service"
)

type unhealthyChecker struct{}

func (unhealthyChecker) Check(context.Context) health.CheckResult {
	return health.CheckResult{Name: "database", Healthy: false, Error: "db down"}
}

type routerAuthStub struct {
	sessionResult service.ValidationResult
	keyResult     service.ValidationResult
}

func (s *routerAuthStub) CreateSession(context.Context, service.CreateSessionRequest) (*service.SessionGrant, error) {
	return &service.SessionGrant{Token: "t", SessionID: "sess-1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *routerAuthStub) ValidateSessionToken(context.Context, string) service.ValidationResult {
	return s.sessionResult
}

func (s *routerAuthStub) RevokeSession(context.Context, string) (bool, error) { return true, nil }

func (s *routerAuthStub) CreateAPIKey(context.Context, service.CreateAPIKeyRequest) (*service.APIKeyGrant, error) {
	return &service.APIKeyGrant{PlaintextKey: "eda_x", KeyID: "key-1"}, nil
}

func (s *routerAuthStub) ValidateAPIKey(context.Context, string) service.ValidationResult {
	return s.keyResult
}

func (s *routerAuthStub) RevokeAPIKey(context.Context, string) (bool, error) { return true, nil }

func (s *routerAuthStub) Cleanup(context.Context) (int64, error) { return 0, nil }

func newRouterTestDeps(auth service.AuthServiceInterface) Dependencies {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth, logger),
		AuthService:      auth,
		CORSOrigins:      []string{"http://localhost"},
		APIRateLimitRPM:  1000,
		AuthRateLimitRPM: 1000,
		EnableOTelHTTP:   false,
	}
}

func perform(r http.Handler, method, target string, headers map[string]string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.10.10.10:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthReadyNilAndUnreadyBranches(t *testing.T) {
	t.Run("nil readiness returns ready", func(t *testing.T) {
		dep := newRouterTestDeps(&routerAuthStub{})
		dep.Readiness = nil
		r := NewRouter(dep)

		rr := perform(r, http.MethodGet, "/health/ready", nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"status":"ready"`) {
			t.Fatalf("expected ready status payload, got %s", rr.Body.String())
		}
	})

	t.Run("unready dependency returns 503", func(t *testing.T) {
		dep := newRouterTestDeps(&routerAuthStub{})
		dep.Readiness = health.NewProbeRunner(time.Second, 0, unhealthyChecker{})
		r := NewRouter(dep)

		rr := perform(r, http.MethodGet, "/health/ready", nil, "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"code":"DEPENDENCY_UNREADY"`) {
			t.Fatalf("expected DEPENDENCY_UNREADY error envelope, got %s", rr.Body.String())
		}
	})
}

func TestRouterHealthLiveAlwaysOK(t *testing.T) {
	r := NewRouter(newRouterTestDeps(&routerAuthStub{}))

	rr := perform(r, http.MethodGet, "/health/live", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("expected health live payload, got %s", rr.Body.String())
	}
}

func TestRouterFallbackGlobalRateLimiter(t *testing.T) {
	dep := newRouterTestDeps(&routerAuthStub{})
	dep.APIRateLimitRPM = 1
	dep.GlobalRateLimiter = nil
	r := NewRouter(dep)

	first := perform(r, http.MethodGet, "/health/live", nil, "")
	if first.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", first.Code)
	}
	second := perform(r, http.MethodGet, "/health/live", nil, "")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429 from fallback limiter, got %d", second.Code)
	}
}

func TestRouterAuthLimiterScopesIssuanceSeparately(t *testing.T) {
	dep := newRouterTestDeps(&routerAuthStub{})
	dep.AuthRateLimitRPM = 1
	r := NewRouter(dep)

	first := perform(r, http.MethodPost, "/api/v1/auth/session", nil, `{"user_id":"user-1"}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("first issuance expected 201, got %d body=%s", first.Code, first.Body.String())
	}
	second := perform(r, http.MethodPost, "/api/v1/auth/session", nil, `{"user_id":"user-1"}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second issuance expected 429, got %d", second.Code)
	}
	// The global scope still admits other traffic.
	if rr := perform(r, http.MethodGet, "/health/live", nil, ""); rr.Code != http.StatusOK {
		t.Fatalf("health expected 200 past auth limiter, got %d", rr.Code)
	}
}

func TestRouterMeRequiresCredential(t *testing.T) {
	auth := &routerAuthStub{sessionResult: service.ValidationResult{IsValid: true, UserID: "user-1", SessionID: "sess-1"}}
	r := NewRouter(newRouterTestDeps(auth))

	rr := perform(r, http.MethodGet, "/api/v1/me", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credential, got %d", rr.Code)
	}

	rr = perform(r, http.MethodGet, "/api/v1/me", map[string]string{"Authorization": "Bearer token"}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with credential, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"user_id":"user-1"`) {
		t.Fatalf("expected principal payload, got %s", rr.Body.String())
	}
}

func TestRouterSecurityHeadersApplied(t *testing.T) {
	r := NewRouter(newRouterTestDeps(&routerAuthStub{}))

	rr := perform(r, http.MethodGet, "/health/live", nil, "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers on every response")
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id echoed")
	}
}
