package stage

import (
	"context"
	"sync"
)

// keyedMutex serializes turns per client inside a single process. Lock
// entries are reference counted and dropped once the last holder releases,
// so the map does not grow with the client population.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLockEntry
}

type keyedLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLockEntry)}
}

func (km *keyedMutex) lock(key string) {
	km.mu.Lock()
	entry, ok := km.locks[key]
	if !ok {
		entry = &keyedLockEntry{}
		km.locks[key] = entry
	}
	entry.refs++
	km.mu.Unlock()

	entry.mu.Lock()
}

func (km *keyedMutex) unlock(key string) {
	km.mu.Lock()
	entry := km.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()

	entry.mu.Unlock()
}

// NoopLocker satisfies TurnLocker for single-instance deployments where the
// in-process keyed mutex is enough.
type NoopLocker struct{}

// Acquire returns immediately with a no-op release.
func (NoopLocker) Acquire(_ context.Context, _ string) (func(), error) {
	return func() {}, nil
}
