package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerifyFailure classifies why a presented session token failed to decode.
// The boundary layer must collapse all of these into a generic 401; the
// distinction exists for logs and metrics only.
type VerifyFailure string

const (
	FailureNone         VerifyFailure = ""
	FailureMalformed    VerifyFailure = "malformed"
	FailureBadSignature VerifyFailure = "bad_signature"
	FailureExpired      VerifyFailure = "expired"
)

// clockSkewLeeway tolerates small drift between the issuing process and
// the verifying process when checking exp/iat claims.
const clockSkewLeeway = 30 * time.Second

type SessionClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies the compact session token. The signing
// secret is injected once at construction and is read-only afterwards; it
// must never appear in logs, errors, or responses.
type TokenCodec struct {
	issuer string
	secret []byte
}

func NewTokenCodec(issuer, secret string) *TokenCodec {
	return &TokenCodec{issuer: issuer, secret: []byte(secret)}
}

// Issue mints a signed token carrying the user and session identity plus
// iat/exp claims. Pure: no store interaction, no side effects.
func (c *TokenCodec) Issue(userID, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks signature integrity and the embedded expiry. Malformed
// input is a normal outcome at this boundary, never a panic. A token that
// verifies here is not yet authenticated: the session row is the source
// of truth for liveness and revocation.
func (c *TokenCodec) Verify(raw string) (*SessionClaims, VerifyFailure) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return c.secret, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithLeeway(clockSkewLeeway))
	if err != nil {
		return nil, classifyVerifyError(err)
	}
	if !tok.Valid || claims.UserID == "" || claims.SessionID == "" {
		return nil, FailureMalformed
	}
	return claims, FailureNone
}

func classifyVerifyError(err error) VerifyFailure {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return FailureExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return FailureBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return FailureMalformed
	default:
		// Claim mismatches (wrong issuer, nbf in the future) land here.
		return FailureMalformed
	}
}
