package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLimiter is a fixed-window counter limiter backed by Redis, for
// deployments running more than one instance behind a balancer. The
// fixed window slightly over-admits at window edges compared to the
// in-memory sliding window; the limits here guard abuse, not billing.
type RedisLimiter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLimiter creates a RedisLimiter.
func NewRedisLimiter(client *redis.Client, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, logger: logger}
}

// Take consumes one slot for key. Redis failures fail open: an
// unreachable limiter must not take down ingest.
func (l *RedisLimiter) Take(ctx context.Context, key string, limit int, window time.Duration) bool {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("redis rate limiter unavailable", zap.Error(err))
		}
		return true
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, window)
	}
	return count <= int64(limit)
}

// TakeCooldown starts a cooldown for key if none is active. It returns
// 0 on success or the remaining wait otherwise. Fails open on Redis
// errors.
func (l *RedisLimiter) TakeCooldown(ctx context.Context, key string, cooldown time.Duration) time.Duration {
	redisKey := fmt.Sprintf("cooldown:%s", key)

	ok, err := l.client.SetNX(ctx, redisKey, 1, cooldown).Result()
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("redis cooldown unavailable", zap.Error(err))
		}
		return 0
	}
	if ok {
		return 0
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		return cooldown
	}
	return ttl
}
