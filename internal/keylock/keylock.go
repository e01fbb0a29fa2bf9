package keylock

import (
	"sort"
	"sync"
)

// Map hands out one mutex per key. An entry lives only while some caller
// holds or waits for it, so unbounded key spaces (batch ids) do not leak.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty Map.
func New() *Map {
	return &Map{locks: make(map[string]*entry)}
}

func (m *Map) acquire(key string) *entry {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return e
}

func (m *Map) release(key string, e *entry) {
	e.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// Lock acquires every key in sorted, de-duplicated order and returns the release func.
func (m *Map) Lock(keys ...string) (unlock func()) {
	ordered := dedupSorted(keys)
	held := make([]*entry, 0, len(ordered))
	for _, k := range ordered {
		held = append(held, m.acquire(k))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				m.release(ordered[i], held[i])
			}
		})
	}
}

// Len reports how many keys are currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func dedupSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
