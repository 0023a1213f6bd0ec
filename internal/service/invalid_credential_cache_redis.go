package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisInvalidCredentialCache shares the miss cache across replicas so a
// credential-stuffing burst does not hit every instance's database.
type RedisInvalidCredentialCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisInvalidCredentialCache(client redis.UniversalClient, prefix string) *RedisInvalidCredentialCache {
	if prefix == "" {
		prefix = "auth:invalid"
	}
	return &RedisInvalidCredentialCache{client: client, prefix: prefix}
}

func (c *RedisInvalidCredentialCache) Seen(ctx context.Context, namespace, fingerprint string) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	_, err := c.client.Get(ctx, c.key(namespace, fingerprint)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisInvalidCredentialCache) Remember(ctx context.Context, namespace, fingerprint string, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.key(namespace, fingerprint), "1", ttl).Err()
}

func (c *RedisInvalidCredentialCache) key(namespace, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, namespace, fingerprint)
}
