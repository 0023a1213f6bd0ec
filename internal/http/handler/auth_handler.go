package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hamdani2020/edagent-auth/internal/domain"
	"github.com/hamdani2020/edagent-auth/internal/http/response"
	"github.com/hamdani2020/edagent-auth/internal/observability"
	"github.com/hamdani2020/edagent-auth/internal/service"
)

type AuthHandler struct {
	auth   service.AuthServiceInterface
	logger *slog.Logger
}

func NewAuthHandler(auth service.AuthServiceInterface, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type createSessionRequest struct {
	UserID     string          `json:"user_id"`
	TTLSeconds int             `json:"ttl_seconds,omitempty"`
	Metadata   domain.Metadata `json:"metadata,omitempty"`
}

type sessionGrantResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}
	if req.UserID == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "user_id is required", nil)
		return
	}

	grant, err := h.auth.CreateSession(r.Context(), service.CreateSessionRequest{
		UserID:    req.UserID,
		TTL:       time.Duration(req.TTLSeconds) * time.Second,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Metadata:  req.Metadata,
	})
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "USER_NOT_FOUND", "user not found", nil)
			return
		}
		h.logger.ErrorContext(r.Context(), "create session failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not create session", nil)
		return
	}

	observability.Audit(r, "session.created", "user_id", grant.UserID, "session_id", grant.SessionID)
	response.JSON(w, r, http.StatusCreated, sessionGrantResponse{
		Token:     grant.Token,
		SessionID: grant.SessionID,
		UserID:    grant.UserID,
		ExpiresAt: grant.ExpiresAt,
	})
}

type validateSessionRequest struct {
	Token string `json:"token"`
}

type validationResponse struct {
	Valid     bool   `json:"valid"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (h *AuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req validateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "token is required", nil)
		return
	}
	h.writeValidation(w, r, h.auth.ValidateSessionToken(r.Context(), req.Token))
}

type revokeResponse struct {
	Revoked bool `json:"revoked"`
}

func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "session_id is required", nil)
		return
	}
	found, err := h.auth.RevokeSession(r.Context(), sessionID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "revoke session failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not revoke session", nil)
		return
	}
	observability.Audit(r, "session.revoked", "session_id", sessionID, "found", found)
	response.JSON(w, r, http.StatusOK, revokeResponse{Revoked: found})
}

type createAPIKeyRequest struct {
	UserID             string   `json:"user_id"`
	Name               string   `json:"name"`
	Permissions        []string `json:"permissions,omitempty"`
	ExpiresInDays      int      `json:"expires_in_days,omitempty"`
	RateLimitPerMinute *int     `json:"rate_limit_per_minute,omitempty"`
}

type apiKeyGrantResponse struct {
	APIKey    string     `json:"api_key"`
	KeyID     string     `json:"key_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *AuthHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}
	if req.UserID == "" || req.Name == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "user_id and name are required", nil)
		return
	}
	if req.ExpiresInDays < 0 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "expires_in_days must not be negative", nil)
		return
	}

	grant, err := h.auth.CreateAPIKey(r.Context(), service.CreateAPIKeyRequest{
		UserID:             req.UserID,
		Name:               req.Name,
		Permissions:        req.Permissions,
		TTLDays:            req.ExpiresInDays,
		RateLimitPerMinute: req.RateLimitPerMinute,
	})
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "USER_NOT_FOUND", "user not found", nil)
			return
		}
		h.logger.ErrorContext(r.Context(), "create api key failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not create api key", nil)
		return
	}

	observability.Audit(r, "apikey.created", "user_id", req.UserID, "key_id", grant.KeyID, "name", req.Name)
	// The plaintext key appears in this response and nowhere else.
	response.JSON(w, r, http.StatusCreated, apiKeyGrantResponse{
		APIKey:    grant.PlaintextKey,
		KeyID:     grant.KeyID,
		ExpiresAt: grant.ExpiresAt,
	})
}

type validateAPIKeyRequest struct {
	APIKey string `json:"api_key"`
}

func (h *AuthHandler) ValidateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req validateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "api_key is required", nil)
		return
	}
	h.writeValidation(w, r, h.auth.ValidateAPIKey(r.Context(), req.APIKey))
}

func (h *AuthHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "key_id")
	if keyID == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "key_id is required", nil)
		return
	}
	found, err := h.auth.RevokeAPIKey(r.Context(), keyID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "revoke api key failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not revoke api key", nil)
		return
	}
	observability.Audit(r, "apikey.revoked", "key_id", keyID, "found", found)
	response.JSON(w, r, http.StatusOK, revokeResponse{Revoked: found})
}

type cleanupResponse struct {
	Cleaned int64 `json:"cleaned"`
}

func (h *AuthHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	cleaned, err := h.auth.Cleanup(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "cleanup failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "cleanup failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, cleanupResponse{Cleaned: cleaned})
}

// writeValidation collapses every credential rejection into the same 401
// body. Only infrastructure trouble is distinguishable, as a 503.
func (h *AuthHandler) writeValidation(w http.ResponseWriter, r *http.Request, result service.ValidationResult) {
	if result.Transient() {
		response.Error(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "authentication backend unavailable", nil)
		return
	}
	if !result.IsValid {
		response.Unauthorized(w, r)
		return
	}
	response.JSON(w, r, http.StatusOK, validationResponse{
		Valid:     true,
		UserID:    result.UserID,
		SessionID: result.SessionID,
	})
}

func clientIP(r *http.Request) string {
	// RealIP middleware rewrites RemoteAddr when forwarded headers are
	// trustworthy.
	return r.RemoteAddr
}
