package redis

import (
	"context"
	"fmt"
	"time"
)

// Counter is the slice of the client the limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// RateLimiter is a fixed-window counter: the first hit in a window sets the
// key's expiry, later hits only increment.
type RateLimiter struct {
	client Counter
}

func NewRateLimiter(client Counter) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > limit {
		return false, nil
	}

	return true, nil
}

func RouteKey(route, clientIP string) string {
	return fmt.Sprintf("rate_limit:%s:%s", route, clientIP)
}
