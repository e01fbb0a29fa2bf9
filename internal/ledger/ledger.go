// Package ledger tracks in-memory holds: units promised to a buyer but not
// yet removed from the catalog.
package ledger

import (
	"sync"

	"github.com/storefront-labs/orchestrator/internal/keylock"
)

// Ledger maps product -> size -> held units. A hold of zero is never stored.
type Ledger struct {
	mu    sync.Mutex
	holds map[string]map[string]int
	locks *keylock.Map
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{
		holds: make(map[string]map[string]int),
		locks: keylock.New(),
	}
}

// Lock serializes every operation that reads availability and then acts on it
// for the given products. Callers keep it across validate, place/release and
// listing refresh.
func (l *Ledger) Lock(productIDs ...string) (unlock func()) {
	return l.locks.Lock(productIDs...)
}

// Place adds one held unit.
func (l *Ledger) Place(productID, size string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bySize, ok := l.holds[productID]
	if !ok {
		bySize = make(map[string]int)
		l.holds[productID] = bySize
	}
	bySize[size]++
}

// Release removes one held unit. It reports false when nothing was held.
func (l *Ledger) Release(productID, size string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	bySize, ok := l.holds[productID]
	if !ok || bySize[size] == 0 {
		return false
	}
	bySize[size]--
	if bySize[size] == 0 {
		delete(bySize, size)
	}
	if len(bySize) == 0 {
		delete(l.holds, productID)
	}
	return true
}

// HeldCount returns the units held for one (product, size).
func (l *Ledger) HeldCount(productID, size string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holds[productID][size]
}

// Held returns a copy of size -> held units for a product.
func (l *Ledger) Held(productID string) map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.holds[productID]))
	for size, n := range l.holds[productID] {
		out[size] = n
	}
	return out
}

// Total returns every held unit across all products.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, bySize := range l.holds {
		for _, c := range bySize {
			n += c
		}
	}
	return n
}
