package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RateLimiter implements fixed-window rate limiting with INCR + EXPIRE.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a RateLimiter on an established client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.rdb}
}

// Allow increments the window counter for key and reports whether the caller
// is still under limit. The first hit in a window sets the expiry.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	return incr.Val() <= int64(limit), nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
