package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl, wait time.Duration) (*miniredis.Miniredis, *Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewLocker(client, ttl, wait)
}

func TestLocker_AcquireRelease(t *testing.T) {
	mr, locker := newTestLocker(t, time.Second, 0)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "lock:reconcile:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:reconcile:1"))

	_, err = locker.Acquire(ctx, "lock:reconcile:1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("lock:reconcile:1"))

	_, err = locker.Acquire(ctx, "lock:reconcile:1")
	assert.NoError(t, err)
}

func TestLease_ReleaseDoesNotDropForeignLock(t *testing.T) {
	mr, locker := newTestLocker(t, time.Second, 0)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)

	// simulate expiry and another holder taking the key
	require.NoError(t, mr.Set("k", "someone-else"))

	require.NoError(t, lease.Release(ctx))
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLocker_Once(t *testing.T) {
	mr, locker := newTestLocker(t, time.Second, 0)
	ctx := context.Background()

	first, err := locker.Once(ctx, "webhook:evt_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := locker.Once(ctx, "webhook:evt_1", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, locker.Forget(ctx, "webhook:evt_1"))
	assert.False(t, mr.Exists("webhook:evt_1"))
}
