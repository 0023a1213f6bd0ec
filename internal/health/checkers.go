package health

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// DatabaseChecker pings the session store's backing database.
type DatabaseChecker struct {
	db *gorm.DB
}

func NewDatabaseChecker(db *gorm.DB) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Name: "database"}
	sqlDB, err := c.db.WithContext(ctx).DB()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Healthy = true
	return result
}

// RedisChecker pings the shared invalid-credential cache. Redis is an
// optional dependency so a nil client reports healthy.
type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Name: "redis"}
	if c.client == nil {
		result.Healthy = true
		return result
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Healthy = true
	return result
}
