package service

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex provides per-user mutual exclusion for the two shared mutable
// resources in this core: the travel sample and the device-primary state.
// Entries are reference counted and removed once the last holder releases,
// so the map does not grow with the user population.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*userLock)}
}

// Lock blocks until the per-user lock is held and returns the unlock func.
func (k *keyedMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &userLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
