package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hamdani2020/edagent-auth/internal/service"
)

type fakeAuthService struct {
	sessionResult service.ValidationResult
	keyResult     service.ValidationResult
	sessionCalls  int
	keyCalls      int
}

func (f *fakeAuthService) CreateSession(context.Context, service.CreateSessionRequest) (*service.SessionGrant, error) {
	return nil, nil
}

func (f *fakeAuthService) ValidateSessionToken(context.Context, string) service.ValidationResult {
	f.sessionCalls++
	return f.sessionResult
}

func (f *fakeAuthService) RevokeSession(context.Context, string) (bool, error) { return false, nil }

func (f *fakeAuthService) CreateAPIKey(context.Context, service.CreateAPIKeyRequest) (*service.APIKeyGrant, error) {
	return nil, nil
}

func (f *fakeAuthService) ValidateAPIKey(context.Context, string) service.ValidationResult {
	f.keyCalls++
	return f.keyResult
}

func (f *fakeAuthService) RevokeAPIKey(context.Context, string) (bool, error) { return false, nil }

func (f *fakeAuthService) Cleanup(context.Context) (int64, error) { return 0, nil }

func protectedHandler(t *testing.T, wantUser string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatal("expected principal in context")
		}
		if principal.UserID != wantUser {
			t.Fatalf("unexpected principal %+v", principal)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticateMissingCredential(t *testing.T) {
	auth := &fakeAuthService{}
	h := Authenticate(auth)(protectedHandler(t, ""))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if auth.sessionCalls+auth.keyCalls != 0 {
		t.Fatal("no credential must mean no service call")
	}
}

func TestAuthenticateBearerSessionToken(t *testing.T) {
	auth := &fakeAuthService{sessionResult: service.ValidationResult{IsValid: true, UserID: "user-1", SessionID: "sess-1"}}
	h := Authenticate(auth)(protectedHandler(t, "user-1"))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer some.jwt.token")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body=%s", rr.Code, rr.Body.String())
	}
	if auth.sessionCalls != 1 || auth.keyCalls != 0 {
		t.Fatalf("expected session path, got sessions=%d keys=%d", auth.sessionCalls, auth.keyCalls)
	}
}

func TestAuthenticatePrefixedBearerRoutesToAPIKey(t *testing.T) {
	auth := &fakeAuthService{keyResult: service.ValidationResult{IsValid: true, UserID: "user-2", SessionID: "key-1"}}
	h := Authenticate(auth)(protectedHandler(t, "user-2"))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer eda_abc123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if auth.keyCalls != 1 || auth.sessionCalls != 0 {
		t.Fatalf("expected api key path, got sessions=%d keys=%d", auth.sessionCalls, auth.keyCalls)
	}
}

func TestAuthenticateAPIKeyHeader(t *testing.T) {
	auth := &fakeAuthService{keyResult: service.ValidationResult{IsValid: true, UserID: "user-3", SessionID: "key-2"}}
	h := Authenticate(auth)(protectedHandler(t, "user-3"))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-API-Key", "eda_xyz")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if auth.keyCalls != 1 {
		t.Fatalf("expected one key validation, got %d", auth.keyCalls)
	}
}

func TestAuthenticateUniformRejectionBody(t *testing.T) {
	reasons := []service.ValidationResult{
		{Reason: service.ReasonMalformed},
		{Reason: service.ReasonBadSignature},
		{Reason: service.ReasonExpired},
		{Reason: service.ReasonSessionNotFound},
		{Reason: service.ReasonNotActive},
	}

	var bodies []string
	for _, result := range reasons {
		auth := &fakeAuthService{sessionResult: result}
		h := Authenticate(auth)(protectedHandler(t, ""))
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer whatever")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("reason %q: expected 401, got %d", result.Reason, rr.Code)
		}
		// Strip the timestamped meta; the error portion must be identical.
		body := rr.Body.String()
		if idx := strings.Index(body, `"meta"`); idx > 0 {
			body = body[:idx]
		}
		bodies = append(bodies, body)
	}
	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Fatalf("rejection bodies must not vary by reason:\n%s\n%s", bodies[0], bodies[i])
		}
	}
}

func TestAuthenticateTransientFailureReturns503(t *testing.T) {
	auth := &fakeAuthService{sessionResult: service.ValidationResult{Reason: service.ReasonStoreUnavailable}}
	h := Authenticate(auth)(protectedHandler(t, ""))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("store outage must be 503, not a credential rejection; got %d", rr.Code)
	}
}
