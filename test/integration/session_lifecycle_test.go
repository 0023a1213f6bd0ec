package integration

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestSessionLifecycleOverHTTP(t *testing.T) {
	stack := newAuthStack(t)

	rr := do(stack, http.MethodPost, "/api/v1/auth/session",
		nil, fmt.Sprintf(`{"user_id":%q,"metadata":{"client":"web"}}`, testUserID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	created := dataOf(t, rr)
	token, _ := created["token"].(string)
	sessionID, _ := created["session_id"].(string)
	if token == "" || sessionID == "" {
		t.Fatalf("incomplete grant %+v", created)
	}

	rr = do(stack, http.MethodPost, "/api/v1/auth/session/validate",
		nil, fmt.Sprintf(`{"token":%q}`, token))
	if rr.Code != http.StatusOK {
		t.Fatalf("validate: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	validated := dataOf(t, rr)
	if validated["valid"] != true || validated["user_id"] != testUserID || validated["session_id"] != sessionID {
		t.Fatalf("unexpected validation payload %+v", validated)
	}

	// The bearer token also carries /me.
	rr = do(stack, http.MethodGet, "/api/v1/me", map[string]string{"Authorization": "Bearer " + token}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(stack, http.MethodDelete, "/api/v1/auth/session/"+sessionID, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d", rr.Code)
	}
	if revoked := dataOf(t, rr); revoked["revoked"] != true {
		t.Fatalf("expected revoked true, got %+v", revoked)
	}

	rr = do(stack, http.MethodPost, "/api/v1/auth/session/validate",
		nil, fmt.Sprintf(`{"token":%q}`, token))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("validate after revoke: expected 401, got %d", rr.Code)
	}

	// Revoking again stays a success and reports the row was found.
	rr = do(stack, http.MethodDelete, "/api/v1/auth/session/"+sessionID, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("second revoke: expected 200, got %d", rr.Code)
	}
}

func TestSessionValidateRejectsTamperedToken(t *testing.T) {
	stack := newAuthStack(t)

	rr := do(stack, http.MethodPost, "/api/v1/auth/session",
		nil, fmt.Sprintf(`{"user_id":%q}`, testUserID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: expected 201, got %d", rr.Code)
	}
	token, _ := dataOf(t, rr)["token"].(string)

	// Flip the last signature byte.
	tampered := token[:len(token)-1]
	if strings.HasSuffix(token, "A") {
		tampered += "B"
	} else {
		tampered += "A"
	}

	rr = do(stack, http.MethodPost, "/api/v1/auth/session/validate",
		nil, fmt.Sprintf(`{"token":%q}`, tampered))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("tampered token: expected 401, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "authentication required") {
		t.Fatalf("expected generic rejection, got %s", rr.Body.String())
	}
}

func TestSessionCreateForUnknownUser(t *testing.T) {
	stack := newAuthStack(t)

	rr := do(stack, http.MethodPost, "/api/v1/auth/session", nil, `{"user_id":"ghost"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCleanupEndpointIsIdempotent(t *testing.T) {
	stack := newAuthStack(t)

	rr := do(stack, http.MethodPost, "/api/v1/auth/cleanup", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("cleanup: expected 200, got %d", rr.Code)
	}
	first := dataOf(t, rr)

	rr = do(stack, http.MethodPost, "/api/v1/auth/cleanup", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("second cleanup: expected 200, got %d", rr.Code)
	}
	second := dataOf(t, rr)
	if first["cleaned"] != float64(0) || second["cleaned"] != float64(0) {
		t.Fatalf("fresh store sweeps must be empty, got %+v then %+v", first, second)
	}
}
