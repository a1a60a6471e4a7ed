// Package lock keeps two update passes from filling the same stats at once.
//
// A fill of one stat is safe to resume after a crash, but two processes
// running the same stat concurrently race on its fill state. Passes take a
// Locker first: a FileLocker for workers sharing a host, a RedisLocker for
// workers spread across hosts.
package lock

import (
	"context"
	"errors"
)

// ErrLockHeld is returned by Acquire when another holder owns the lock.
var ErrLockHeld = errors.New("lock is held by another process")

// ErrNotHeld is returned by Release when the caller does not own the lock.
var ErrNotHeld = errors.New("lock is not held")

// Locker is an exclusive, non-blocking lock.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// NopLocker always succeeds.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context) error { return nil }
func (NopLocker) Release(context.Context) error { return nil }

// With runs fn while holding l.
func With(ctx context.Context, l Locker, fn func(ctx context.Context) error) (err error) {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if relErr := l.Release(context.WithoutCancel(ctx)); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()
	return fn(ctx)
}
