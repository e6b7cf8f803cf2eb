package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockBusy is returned when a key stays held past the wait budget.
var ErrLockBusy = errors.New("resource_busy")

// Locker grants short-lived exclusive ownership of a key.
type Locker interface {
	// TryLock returns a release token and true when the key was acquired.
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

const pollInterval = 25 * time.Millisecond

// WithLock runs fn while holding key, polling for up to wait before giving up with ErrLockBusy.
func WithLock(ctx context.Context, l Locker, key string, ttl, wait time.Duration, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}

	deadline := time.Now().Add(wait)
	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			defer func() {
				_ = l.Release(context.WithoutCancel(ctx), key, token)
			}()
			return fn(ctx)
		}
		if !time.Now().Before(deadline) {
			return ErrLockBusy
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
