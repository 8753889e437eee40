// Package lock provides scoped mutual exclusion keyed by resource name.
// Callers hold a lock only for the critical section around a single
// order, item, or wallet row.
package lock

import "context"

// ReleaseFunc releases a held lock. Safe to call more than once.
type ReleaseFunc func(ctx context.Context) error

// Locker acquires a lock for the given key, blocking until the lock is held,
// the context is cancelled, or the implementation gives up. Implementations
// return domainerrors.ErrLockAcquisitionFailed when the lock cannot be taken.
type Locker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}
