package reconcile

import (
	"slices"
	"sync"
)

// keyedMutex serializes work per key. Entries are reference counted and
// dropped when the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// lockAll acquires every key in sorted order, so concurrent callers cannot
// deadlock on overlapping key sets. The returned func releases them.
func (k *keyedMutex) lockAll(keys ...string) func() {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	entries := make([]*keyedEntry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, k.acquire(key))
	}

	return func() {
		for i := len(keys) - 1; i >= 0; i-- {
			k.release(keys[i], entries[i])
		}
	}
}

func (k *keyedMutex) acquire(key string) *keyedEntry {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return e
}

func (k *keyedMutex) release(key string, e *keyedEntry) {
	e.mu.Unlock()

	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
