package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridshorts/pipeline/internal/logging"
)

// RedisLimiter enforces the posting cap across processes using a
// fixed-window INCR+EXPIRE counter. Used when several batch runs share
// one posting token (e.g. parallel cron jobs on different hosts); the
// in-process WindowLimiter covers the single-host case.
type RedisLimiter struct {
	rdb    *redis.Client
	key    string
	limit  int
	window time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	log    *logging.Logger
}

// NewRedisLimiter builds a limiter on the given shared counter key.
func NewRedisLimiter(rdb *redis.Client, key string, limit int, window time.Duration, log *logging.Logger) *RedisLimiter {
	return &RedisLimiter{
		rdb:    rdb,
		key:    key,
		limit:  limit,
		window: window,
		sleep:  sleepCtx,
		log:    log,
	}
}

// Acquire increments the shared window counter, waiting out the window
// TTL when the cap has been reached. INCR is atomic on the server, so
// concurrent acquirers cannot overshoot the cap.
func (l *RedisLimiter) Acquire(ctx context.Context) error {
	for {
		count, err := l.rdb.Incr(ctx, l.key).Result()
		if err != nil {
			return Transient("ratelimit", fmt.Errorf("redis incr: %w", err))
		}
		if count == 1 {
			l.rdb.Expire(ctx, l.key, l.window)
		}
		if count <= int64(l.limit) {
			return nil
		}

		ttl, err := l.rdb.TTL(ctx, l.key).Result()
		if err != nil || ttl <= 0 {
			ttl = l.window
		}
		l.log.Warn("shared rate limit reached (%d calls per %s), waiting %s", l.limit, l.window, ttl)
		if err := l.sleep(ctx, ttl); err != nil {
			return err
		}
	}
}
