package lock

import "context"

// Locker provides mutual exclusion with context support. Both reactors take
// a per-role instance lock at startup so a second watcher can never violate
// the flag's single-writer invariant, and the status store serializes its
// read-modify-write cycles through the same interface.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
	TryLock(ctx context.Context) (bool, error)
}

// WithLock runs fn while holding l. The lock is released even when fn fails.
func WithLock(ctx context.Context, l Locker, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer l.Unlock(ctx) //nolint:errcheck
	return fn()
}
