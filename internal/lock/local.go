package lock

import (
	"context"
	"sync"
)

// LocalLocker is an in-process Locker backed by a table of per-key channels.
// Suitable for tests and single-instance deployments; multi-instance
// deployments use the redis-backed implementation.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	for {
		l.mu.Lock()
		ch, held := l.locks[key]
		if !held {
			l.locks[key] = make(chan struct{})
			l.mu.Unlock()

			var once sync.Once
			release := func(context.Context) error {
				once.Do(func() {
					l.mu.Lock()
					waiters := l.locks[key]
					delete(l.locks, key)
					l.mu.Unlock()
					close(waiters)
				})
				return nil
			}
			return release, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
			// Holder released; race for the lock again.
		}
	}
}
