package security

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"callbridge/pkg/utils"
)

const redisKeyPrefix = "callbridge:ratelimit:"

// RedisLimiter shares rate-limit windows across api replicas. When Redis is
// unreachable it degrades to a process-local window instead of failing calls.
type RedisLimiter struct {
	rdb      *redis.Client
	window   time.Duration
	ceiling  int
	fallback *MemoryLimiter
	log      *slog.Logger
}

func NewRedisLimiter(rdb *redis.Client, window time.Duration, ceiling int, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RedisLimiter{
		rdb:      rdb,
		window:   window,
		ceiling:  ceiling,
		fallback: NewMemoryLimiter(window, ceiling),
		log:      log,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := utils.FixedWindowAllow(ctx, l.rdb, redisKeyPrefix+key, l.ceiling, l.window)
	if err != nil {
		l.log.Warn("rate limit redis unavailable, using local window", "error", err)
		return l.fallback.Allow(ctx, key)
	}
	return res.Allowed, nil
}
