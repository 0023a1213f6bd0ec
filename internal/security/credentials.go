package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// APIKeyPrefix marks plaintext API key secrets so the boundary layer can
// route a bearer credential to the key validation path instead of the
// session token path.
const APIKeyPrefix = "eda_"

const (
	sessionIDEntropy = 32
	apiKeyEntropy    = 32
)

// NewSessionID returns an opaque session identifier with 32 bytes of
// entropy. Collisions are negligible at this length; the store still
// reports them so the caller can retry.
func NewSessionID() (string, error) {
	return randomToken(sessionIDEntropy)
}

// NewAPIKeySecret generates the plaintext API key secret. The plaintext
// is returned to the caller exactly once and is never persisted.
func NewAPIKeySecret() (string, error) {
	tok, err := randomToken(apiKeyEntropy)
	if err != nil {
		return "", err
	}
	return APIKeyPrefix + tok, nil
}

// HashAPIKey derives the stored lookup hash of a plaintext key. SHA-256
// keeps the hash deterministic so FindByHash stays an indexed point read.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// IsAPIKey reports whether a bearer credential looks like an API key
// secret rather than a session token.
func IsAPIKey(credential string) bool {
	return strings.HasPrefix(credential, APIKeyPrefix)
}

func randomToken(entropy int) (string, error) {
	buf := make([]byte, entropy)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
