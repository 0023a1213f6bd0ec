package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hamdani2020/edagent-auth/internal/domain"
	"github.com/hamdani2020/edagent-auth/internal/observability"
	"github.com/hamdani2020/edagent-auth/internal/repository"
	"github.com/hamdani2020/edagent-auth/internal/security"
)

var (
	ErrUserNotFound = errors.New("user not found")
	// ErrIDExhausted means repeated secure-random draws kept colliding,
	// which indicates a broken entropy source rather than bad luck.
	ErrIDExhausted = errors.New("could not allocate a unique credential id")
)

const issueRetries = 3

type AuthServiceOptions struct {
	SessionTTL       time.Duration
	Retention        time.Duration
	StoreTimeout     time.Duration
	NegativeCacheTTL time.Duration
	Clock            func() time.Time
}

func (o *AuthServiceOptions) applyDefaults() {
	if o.SessionTTL <= 0 {
		o.SessionTTL = 24 * time.Hour
	}
	if o.Retention <= 0 {
		o.Retention = 30 * 24 * time.Hour
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 3 * time.Second
	}
	if o.NegativeCacheTTL <= 0 {
		o.NegativeCacheTTL = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
}

// AuthService orchestrates credential issuance, validation, lifecycle
// mutation, and the cleanup sweep. All mutation of session and key rows
// goes through the injected repositories.
type AuthService struct {
	codec    *security.TokenCodec
	sessions repository.SessionRepository
	keys     repository.APIKeyRepository
	users    UserLookup
	shield   InvalidCredentialCache
	logger   *slog.Logger
	opts     AuthServiceOptions
}

func NewAuthService(
	codec *security.TokenCodec,
	sessions repository.SessionRepository,
	keys repository.APIKeyRepository,
	users UserLookup,
	shield InvalidCredentialCache,
	logger *slog.Logger,
	opts AuthServiceOptions,
) *AuthService {
	opts.applyDefaults()
	if shield == nil {
		shield = NewNoopInvalidCredentialCache()
	}
	return &AuthService{
		codec:    codec,
		sessions: sessions,
		keys:     keys,
		users:    users,
		shield:   shield,
		logger:   logger,
		opts:     opts,
	}
}

func (s *AuthService) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionGrant, error) {
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.opts.SessionTTL
	}

	exists, err := s.userExists(ctx, req.UserID)
	if err != nil {
		observability.RecordSessionCreated(ctx, "error")
		return nil, err
	}
	if !exists {
		observability.RecordSessionCreated(ctx, "user_not_found")
		return nil, fmt.Errorf("create session for %q: %w", req.UserID, ErrUserNotFound)
	}

	now := s.opts.Clock()
	expiresAt := now.Add(ttl)
	for attempt := 0; attempt < issueRetries; attempt++ {
		sessionID, err := security.NewSessionID()
		if err != nil {
			return nil, err
		}
		storeCtx, cancel := s.storeContext(ctx)
		err = s.sessions.Create(storeCtx, &domain.Session{
			SessionID:    sessionID,
			UserID:       req.UserID,
			Status:       domain.SessionActive,
			IPAddress:    req.IPAddress,
			UserAgent:    req.UserAgent,
			Metadata:     req.Metadata,
			ExpiresAt:    expiresAt,
			LastAccessed: now,
		})
		cancel()
		if errors.Is(err, repository.ErrDuplicateSessionID) {
			continue
		}
		if err != nil {
			observability.RecordSessionCreated(ctx, "error")
			return nil, fmt.Errorf("persist session: %w", err)
		}

		token, err := s.codec.Issue(req.UserID, sessionID, ttl)
		if err != nil {
			return nil, fmt.Errorf("sign session token: %w", err)
		}
		observability.RecordSessionCreated(ctx, "success")
		s.logger.InfoContext(ctx, "session created", "session_id", sessionID, "user_id", req.UserID, "expires_at", expiresAt)
		return &SessionGrant{Token: token, SessionID: sessionID, UserID: req.UserID, ExpiresAt: expiresAt}, nil
	}
	return nil, ErrIDExhausted
}

// ValidateSessionToken applies the two-layer check: token integrity
// first, then the session row as the authority on liveness. A touch
// failure degrades staleness tracking only and never rejects the caller.
func (s *AuthService) ValidateSessionToken(ctx context.Context, token string) ValidationResult {
	claims, failure := s.codec.Verify(token)
	if failure != security.FailureNone {
		return s.recordSessionOutcome(ctx, invalid(FailureReason(failure)))
	}

	storeCtx, cancel := s.storeContext(ctx)
	sess, err := s.sessions.FindByID(storeCtx, claims.SessionID)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return s.recordSessionOutcome(ctx, invalid(ReasonSessionNotFound))
		}
		s.logger.WarnContext(ctx, "session lookup failed", "error", err)
		return s.recordSessionOutcome(ctx, invalid(ReasonStoreUnavailable))
	}
	if sess.UserID != claims.UserID {
		// Token and row disagree about ownership; treat like a miss.
		return s.recordSessionOutcome(ctx, invalid(ReasonSessionNotFound))
	}

	now := s.opts.Clock()
	if sess.IsExpired(now) {
		if sess.Status == domain.SessionActive {
			storeCtx, cancel := s.storeContext(ctx)
			if _, err := s.sessions.Expire(storeCtx, sess.SessionID); err != nil {
				s.logger.WarnContext(ctx, "failed to mark session expired", "session_id", sess.SessionID, "error", err)
			}
			cancel()
		}
		return s.recordSessionOutcome(ctx, invalid(ReasonExpired))
	}
	if sess.Status != domain.SessionActive {
		return s.recordSessionOutcome(ctx, invalid(ReasonNotActive))
	}

	storeCtx, cancel = s.storeContext(ctx)
	if err := s.sessions.TouchLastAccessed(storeCtx, sess.SessionID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to touch last_accessed", "session_id", sess.SessionID, "error", err)
	}
	cancel()

	return s.recordSessionOutcome(ctx, valid(sess.UserID, sess.SessionID))
}

// RevokeSession is a terminal override: it succeeds idempotently whatever
// the current status. The bool reports whether the row exists.
func (s *AuthService) RevokeSession(ctx context.Context, sessionID string) (bool, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	found, err := s.sessions.Revoke(storeCtx, sessionID)
	if err != nil {
		observability.RecordSessionRevoked(ctx, "error")
		return false, fmt.Errorf("revoke session: %w", err)
	}
	observability.RecordSessionRevoked(ctx, "success")
	s.logger.InfoContext(ctx, "session revoked", "session_id", sessionID, "found", found)
	return found, nil
}

func (s *AuthService) CreateAPIKey(ctx context.Context, req CreateAPIKeyRequest) (*APIKeyGrant, error) {
	exists, err := s.userExists(ctx, req.UserID)
	if err != nil {
		observability.RecordAPIKeyCreated(ctx, "error")
		return nil, err
	}
	if !exists {
		observability.RecordAPIKeyCreated(ctx, "user_not_found")
		return nil, fmt.Errorf("create api key for %q: %w", req.UserID, ErrUserNotFound)
	}

	var expiresAt *time.Time
	if req.TTLDays > 0 {
		t := s.opts.Clock().AddDate(0, 0, req.TTLDays)
		expiresAt = &t
	}

	for attempt := 0; attempt < issueRetries; attempt++ {
		secret, err := security.NewAPIKeySecret()
		if err != nil {
			return nil, err
		}
		keyID := uuid.NewString()
		storeCtx, cancel := s.storeContext(ctx)
		err = s.keys.Create(storeCtx, &domain.APIKey{
			KeyID:              keyID,
			UserID:             req.UserID,
			KeyHash:            security.HashAPIKey(secret),
			Name:               req.Name,
			Permissions:        req.Permissions,
			IsActive:           true,
			RateLimitPerMinute: req.RateLimitPerMinute,
			ExpiresAt:          expiresAt,
		})
		cancel()
		if errors.Is(err, repository.ErrDuplicateKeyHash) {
			continue
		}
		if err != nil {
			observability.RecordAPIKeyCreated(ctx, "error")
			return nil, fmt.Errorf("persist api key: %w", err)
		}
		observability.RecordAPIKeyCreated(ctx, "success")
		s.logger.InfoContext(ctx, "api key created", "key_id", keyID, "user_id", req.UserID, "name", req.Name)
		return &APIKeyGrant{PlaintextKey: secret, KeyID: keyID, ExpiresAt: expiresAt}, nil
	}
	return nil, ErrIDExhausted
}

// ValidateAPIKey hashes the presented secret and resolves it through the
// key store. The key id doubles as the caller's effective session
// identifier for downstream authorization.
func (s *AuthService) ValidateAPIKey(ctx context.Context, plaintextKey string) ValidationResult {
	hash := security.HashAPIKey(plaintextKey)

	if seen, err := s.shield.Seen(ctx, apiKeyNamespace, hash); err == nil && seen {
		return s.recordKeyOutcome(ctx, invalid(ReasonInvalidKey))
	}

	storeCtx, cancel := s.storeContext(ctx)
	key, err := s.keys.FindByHash(storeCtx, hash)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			if err := s.shield.Remember(ctx, apiKeyNamespace, hash, s.opts.NegativeCacheTTL); err != nil {
				s.logger.DebugContext(ctx, "negative cache write failed", "error", err)
			}
			return s.recordKeyOutcome(ctx, invalid(ReasonInvalidKey))
		}
		s.logger.WarnContext(ctx, "api key lookup failed", "error", err)
		return s.recordKeyOutcome(ctx, invalid(ReasonStoreUnavailable))
	}

	now := s.opts.Clock()
	if !key.IsActive {
		return s.recordKeyOutcome(ctx, invalid(ReasonInactive))
	}
	if key.ExpiresAt != nil && !key.ExpiresAt.After(now) {
		return s.recordKeyOutcome(ctx, invalid(ReasonExpired))
	}

	storeCtx, cancel = s.storeContext(ctx)
	err = s.keys.IncrementUsage(storeCtx, key.KeyID, now)
	cancel()
	if err != nil {
		// Usage counts must not be lost, so a failed increment is an
		// infrastructure failure, not a successful validation.
		s.logger.WarnContext(ctx, "usage increment failed", "key_id", key.KeyID, "error", err)
		return s.recordKeyOutcome(ctx, invalid(ReasonStoreUnavailable))
	}

	return s.recordKeyOutcome(ctx, valid(key.UserID, key.KeyID))
}

func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID string) (bool, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	found, err := s.keys.Deactivate(storeCtx, keyID)
	if err != nil {
		observability.RecordAPIKeyRevoked(ctx, "error")
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	observability.RecordAPIKeyRevoked(ctx, "success")
	s.logger.InfoContext(ctx, "api key revoked", "key_id", keyID, "found", found)
	return found, nil
}

// Cleanup runs the two-phase sweep: mark overdue active sessions as
// expired, then purge terminal rows past the retention window. Both
// phases only move rows toward their terminal state, so the sweep is
// idempotent and safe next to live validation traffic.
func (s *AuthService) Cleanup(ctx context.Context) (int64, error) {
	now := s.opts.Clock()

	storeCtx, cancel := s.storeContext(ctx)
	expired, err := s.sessions.MarkExpired(storeCtx, now)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("mark expired sessions: %w", err)
	}
	observability.RecordCleanup(ctx, "expired", expired)

	storeCtx, cancel = s.storeContext(ctx)
	deleted, err := s.sessions.DeleteTerminalBefore(storeCtx, now.Add(-s.opts.Retention))
	cancel()
	if err != nil {
		return expired, fmt.Errorf("delete terminal sessions: %w", err)
	}
	observability.RecordCleanup(ctx, "deleted", deleted)

	if expired+deleted > 0 {
		s.logger.InfoContext(ctx, "cleanup sweep finished", "expired", expired, "deleted", deleted)
	}
	return expired + deleted, nil
}

func (s *AuthService) userExists(ctx context.Context, userID string) (bool, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	exists, err := s.users.Exists(storeCtx, userID)
	if err != nil {
		return false, fmt.Errorf("user lookup: %w", err)
	}
	return exists, nil
}

// storeContext bounds every store round trip so a hung backend cannot
// hang the caller's request.
func (s *AuthService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

func (s *AuthService) recordSessionOutcome(ctx context.Context, r ValidationResult) ValidationResult {
	observability.RecordValidation(ctx, "session", outcomeLabel(r))
	return r
}

func (s *AuthService) recordKeyOutcome(ctx context.Context, r ValidationResult) ValidationResult {
	observability.RecordValidation(ctx, "api_key", outcomeLabel(r))
	return r
}

func outcomeLabel(r ValidationResult) string {
	if r.IsValid {
		return "valid"
	}
	return string(r.Reason)
}
