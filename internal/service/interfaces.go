package service

import (
	"context"
	"time"

	"github.com/hamdani2020/edagent-auth/internal/domain"
)

type CreateSessionRequest struct {
	UserID    string
	TTL       time.Duration // zero means the configured default
	IPAddress string
	UserAgent string
	Metadata  domain.Metadata
}

// SessionGrant is the issuance response. The token is the only copy of
// the credential handed to the caller.
type SessionGrant struct {
	Token     string
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

type CreateAPIKeyRequest struct {
	UserID             string
	Name               string
	Permissions        []string
	TTLDays            int // zero means the key never expires
	RateLimitPerMinute *int
}

// APIKeyGrant carries the plaintext secret exactly once; it is never
// retrievable again.
type APIKeyGrant struct {
	PlaintextKey string
	KeyID        string
	ExpiresAt    *time.Time
}

type AuthServiceInterface interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionGrant, error)
	ValidateSessionToken(ctx context.Context, token string) ValidationResult
	RevokeSession(ctx context.Context, sessionID string) (bool, error)
	CreateAPIKey(ctx context.Context, req CreateAPIKeyRequest) (*APIKeyGrant, error)
	ValidateAPIKey(ctx context.Context, plaintextKey string) ValidationResult
	RevokeAPIKey(ctx context.Context, keyID string) (bool, error)
	Cleanup(ctx context.Context) (int64, error)
}

// UserLookup is the narrow collaborator contract for user existence.
type UserLookup interface {
	Exists(ctx context.Context, userID string) (bool, error)
}
