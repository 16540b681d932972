package exam

import "sync"

// attemptLocks serializes operations on a single attempt. Locks are
// created on demand and released when the attempt finishes.
type attemptLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newAttemptLocks() *attemptLocks {
	return &attemptLocks{locks: make(map[int64]*sync.Mutex)}
}

func (l *attemptLocks) lock(attemptID int64) *sync.Mutex {
	l.mu.Lock()
	m, ok := l.locks[attemptID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[attemptID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m
}

// forget drops the lock entry for a finished attempt. Safe to call
// while the lock is held; holders keep their reference.
func (l *attemptLocks) forget(attemptID int64) {
	l.mu.Lock()
	delete(l.locks, attemptID)
	l.mu.Unlock()
}
