// internal/pkg/lock/lock.go
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is still held by someone else
// after the wait budget is spent.
var ErrNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

func NewLocker(client *redis.Client, ttl, wait time.Duration) *Locker {
	return &Locker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		retry:  50 * time.Millisecond,
	}
}

// Lease is a held lock.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Acquire takes the key, polling until wait elapses.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lease, error) {
	token := ulid.Make().String()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return &Lease{locker: l, key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// Release gives the lock back if it has not expired and been retaken.
func (s *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, s.locker.client, []string{s.key}, s.token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", s.key, err)
	}
	return nil
}

// Once records key for ttl and reports whether this was the first sighting.
func (l *Locker) Once(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record %s: %w", key, err)
	}
	return ok, nil
}

// Forget removes a key recorded by Once.
func (l *Locker) Forget(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}
