package service

import (
	"context"
	"sync"
	"time"
)

// apiKeyNamespace partitions the cache; the fingerprint within it is the
// SHA-256 lookup hash of the presented secret, never the secret itself.
const apiKeyNamespace = "api_key"

// InvalidCredentialCache shields the key store from repeated lookups of
// credentials already known to be unknown. It only ever remembers misses:
// a hit here short-circuits to "invalid" without a store round trip, and
// entries age out on a short TTL so a freshly issued key is usable at
// worst one TTL after a premature probe.
type InvalidCredentialCache interface {
	Seen(ctx context.Context, namespace, fingerprint string) (bool, error)
	Remember(ctx context.Context, namespace, fingerprint string, ttl time.Duration) error
}

type NoopInvalidCredentialCache struct{}

func NewNoopInvalidCredentialCache() *NoopInvalidCredentialCache {
	return &NoopInvalidCredentialCache{}
}

func (c *NoopInvalidCredentialCache) Seen(context.Context, string, string) (bool, error) {
	return false, nil
}

func (c *NoopInvalidCredentialCache) Remember(context.Context, string, string, time.Duration) error {
	return nil
}

type InMemoryInvalidCredentialCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]time.Time
}

func NewInMemoryInvalidCredentialCache() *InMemoryInvalidCredentialCache {
	return &InMemoryInvalidCredentialCache{entries: make(map[string]map[string]time.Time)}
}

func (c *InMemoryInvalidCredentialCache) Seen(_ context.Context, namespace, fingerprint string) (bool, error) {
	now := time.Now().UTC()
	c.mu.RLock()
	ns, ok := c.entries[namespace]
	if !ok {
		c.mu.RUnlock()
		return false, nil
	}
	expiresAt, ok := ns[fingerprint]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if now.After(expiresAt) {
		c.mu.Lock()
		if ns2, ok2 := c.entries[namespace]; ok2 {
			delete(ns2, fingerprint)
			if len(ns2) == 0 {
				delete(c.entries, namespace)
			}
		}
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (c *InMemoryInvalidCredentialCache) Remember(_ context.Context, namespace, fingerprint string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ns, ok := c.entries[namespace]
	if !ok {
		ns = make(map[string]time.Time)
		c.entries[namespace] = ns
	}
	ns[fingerprint] = time.Now().UTC().Add(ttl)
	return nil
}
