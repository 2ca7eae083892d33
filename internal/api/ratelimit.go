package api

import (
	"context"
	"fmt"
	"time"

	"admissions-forms/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per client kept in Redis. Redis
// failures let the request through.
type RateLimiter struct {
	client   redis.Cmdable
	prefix   string
	requests int64
	window   time.Duration
	logger   logger.Logger
	now      func() time.Time
}

func NewRateLimiter(client redis.Cmdable, requests int, window time.Duration, log logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		client:   client,
		prefix:   "ratelimit",
		requests: int64(requests),
		window:   window,
		logger:   logger.ForComponent(log, "ratelimit"),
		now:      time.Now,
	}
}

func (l *RateLimiter) key(client string, slot int64) string {
	return fmt.Sprintf("%s:%s:%d", l.prefix, client, slot)
}

// Allow counts one request from client. When the window is exhausted it
// returns false and the time until the window resets.
func (l *RateLimiter) Allow(ctx context.Context, client string) (bool, time.Duration) {
	now := l.now()
	slot := now.UnixNano() / int64(l.window)
	key := l.key(client, slot)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request", map[string]interface{}{"client": client, "error": err.Error()})
		return true, 0
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Warn("rate limit expiry failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}
	if count > l.requests {
		reset := time.Unix(0, (slot+1)*int64(l.window))
		retry := reset.Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return false, retry.Round(time.Second)
	}
	return true, 0
}
