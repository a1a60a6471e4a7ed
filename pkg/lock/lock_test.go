package lock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLocker(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "run", "countstat.lock")

	first := NewFileLocker(path)
	second := NewFileLocker(path)

	require.NoError(t, first.Acquire(ctx))
	err := second.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, first.Release(ctx))
	require.NoError(t, second.Acquire(ctx))
	require.NoError(t, second.Release(ctx))

	assert.ErrorIs(t, first.Release(ctx), ErrNotHeld)
}

func TestFileLocker_HeldByOtherFlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "countstat.lock")

	other := flock.New(path)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	assert.ErrorIs(t, NewFileLocker(path).Acquire(context.Background()), ErrLockHeld)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	first := NewRedisLocker(client, "countstat:update", time.Minute)
	second := NewRedisLocker(client, "countstat:update", time.Minute)

	require.NoError(t, first.Acquire(ctx))
	assert.True(t, mr.Exists("countstat:update"))
	assert.Equal(t, time.Minute, mr.TTL("countstat:update"))

	assert.ErrorIs(t, second.Acquire(ctx), ErrLockHeld)

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("countstat:update"))

	require.NoError(t, second.Acquire(ctx))
	require.NoError(t, second.Release(ctx))
}

func TestRedisLocker_ExpiredLeaseDoesNotReleaseSuccessor(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	first := NewRedisLocker(client, "countstat:update", time.Minute)
	second := NewRedisLocker(client, "countstat:update", time.Minute)

	require.NoError(t, first.Acquire(ctx))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, second.Acquire(ctx))

	err := first.Release(ctx)
	assert.ErrorIs(t, err, ErrNotHeld)
	assert.True(t, mr.Exists("countstat:update"))

	require.NoError(t, second.Release(ctx))
}

func TestRedisLocker_ReleaseWithoutAcquire(t *testing.T) {
	_, client := newRedis(t)
	l := NewRedisLocker(client, "k", 0)
	assert.Equal(t, DefaultTTL, l.ttl)
	assert.ErrorIs(t, l.Release(context.Background()), ErrNotHeld)
}

func TestWith(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "countstat.lock")
	l := NewFileLocker(path)

	ran := false
	err := With(ctx, l, func(ctx context.Context) error {
		ran = true
		assert.ErrorIs(t, NewFileLocker(path).Acquire(ctx), ErrLockHeld)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	boom := errors.New("boom")
	err = With(ctx, l, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	// released after a failing run
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Release(ctx))
}

func TestWith_HeldSkipsRun(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	holder := NewRedisLocker(client, "k", time.Minute)
	require.NoError(t, holder.Acquire(ctx))

	err := With(ctx, NewRedisLocker(client, "k", time.Minute), func(context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.NoError(t, With(ctx, NopLocker{}, func(context.Context) error { return nil }))
}
