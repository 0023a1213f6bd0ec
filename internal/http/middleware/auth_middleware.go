package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hamdani2020/edagent-auth/internal/http/response"
	"github.com/hamdani2020/edagent-auth/internal/security"
	"github.com/hamdani2020/edagent-auth/internal/service"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Principal is the authenticated caller attached to the request context.
// For API keys the session id carries the key id, which downstream
// authorization treats as the effective session.
type Principal struct {
	UserID     string
	SessionID  string
	Credential string // "session" or "api_key"
}

// Authenticate resolves the presented credential through the auth
// service. Keys are recognized by their prefix whichever header they
// arrive in; everything else is treated as a session token. All
// rejections share one 401 body so the response cannot be used to probe
// which credentials exist.
func Authenticate(auth service.AuthServiceInterface) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := extractCredential(r)
			if raw == "" {
				response.Unauthorized(w, r)
				return
			}

			var result service.ValidationResult
			credential := "session"
			if security.IsAPIKey(raw) {
				credential = "api_key"
				result = auth.ValidateAPIKey(r.Context(), raw)
			} else {
				result = auth.ValidateSessionToken(r.Context(), raw)
			}

			if result.Transient() {
				response.Error(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "authentication backend unavailable", nil)
				return
			}
			if !result.IsValid {
				slog.DebugContext(r.Context(), "authentication rejected",
					"credential", credential, "source", source, "reason", string(result.Reason))
				response.Unauthorized(w, r)
				return
			}

			principal := Principal{UserID: result.UserID, SessionID: result.SessionID, Credential: credential}
			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

func extractCredential(r *http.Request) (string, string) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key), "api_key_header"
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:]), "bearer"
	}
	return "", "none"
}
