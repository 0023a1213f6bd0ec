package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hamdani2020/edagent-auth/internal/health"
	"github.com/hamdani2020/edagent-auth/internal/http/handler"
	"github.com/hamdani2020/edagent-auth/internal/http/middleware"
	"github.com/hamdani2020/edagent-auth/internal/http/response"
	"github.com/hamdani2020/edagent-auth/internal/service"
)

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	AuthService       service.AuthServiceInterface
	CORSOrigins       []string
	APIRateLimitRPM   int
	AuthRateLimitRPM  int
	GlobalRateLimiter GlobalRateLimiterFunc
	AuthRateLimiter   AuthRateLimiterFunc
	Readiness         *health.ProbeRunner
	EnableOTelHTTP    bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware())
	}

	// Issuance and validation sit behind a tighter limiter: they are the
	// endpoints credential stuffing goes after.
	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/session", dep.AuthHandler.CreateSession)
			r.With(authLimiter).Post("/session/validate", dep.AuthHandler.ValidateSession)
			r.Delete("/session/{session_id}", dep.AuthHandler.RevokeSession)
			r.With(authLimiter).Post("/api-key", dep.AuthHandler.CreateAPIKey)
			r.With(authLimiter).Post("/api-key/validate", dep.AuthHandler.ValidateAPIKey)
			r.Delete("/api-key/{key_id}", dep.AuthHandler.RevokeAPIKey)
			r.Post("/cleanup", dep.AuthHandler.Cleanup)
		})

		r.With(middleware.Authenticate(dep.AuthService)).Get("/me", func(w http.ResponseWriter, r *http.Request) {
			principal, _ := middleware.PrincipalFromContext(r.Context())
			response.JSON(w, r, http.StatusOK, map[string]string{
				"user_id":    principal.UserID,
				"session_id": principal.SessionID,
				"credential": principal.Credential,
			})
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
