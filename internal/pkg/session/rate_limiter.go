// internal/pkg/session/rate_limiter.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow counts one hit against a fixed window and reports whether the
// caller is still within maxRequests.
func (r *RateLimiter) Allow(ctx context.Context, identityID int64, action string, maxRequests int64, window time.Duration) (bool, error) {
	key := rateLimitKey(identityID, action)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	// Set expiration on first hit
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= maxRequests, nil
}

// Remaining returns how many hits are left in the current window.
func (r *RateLimiter) Remaining(ctx context.Context, identityID int64, action string, maxRequests int64) (int64, error) {
	count, err := r.client.Get(ctx, rateLimitKey(identityID, action)).Int64()
	if err == redis.Nil {
		return maxRequests, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get rate limit: %w", err)
	}

	remaining := maxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears the counter for an identity and action.
func (r *RateLimiter) Reset(ctx context.Context, identityID int64, action string) error {
	return r.client.Del(ctx, rateLimitKey(identityID, action)).Err()
}

func rateLimitKey(identityID int64, action string) string {
	return fmt.Sprintf("ratelimit:%s:%d", action, identityID)
}
