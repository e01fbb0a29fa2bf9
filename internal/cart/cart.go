package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

// Line is one requested unit. Two lines with the same product and size mean
// two units.
type Line struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
}

// CatalogReader is the catalog slice the cart validates against.
type CatalogReader interface {
	Get(ctx context.Context, productID string) (model.Product, error)
}

// Store keeps one cart per session in memory. Carts are intent only; nothing
// is held until checkout.
type Store struct {
	mu      sync.Mutex
	carts   map[string][]Line
	catalog CatalogReader
}

func NewStore(catalog CatalogReader) *Store {
	return &Store{carts: make(map[string][]Line), catalog: catalog}
}

// Add appends a line after checking the catalog carries the size.
func (s *Store) Add(ctx context.Context, sessionID, productID, size string) ([]Line, error) {
	if sessionID == "" || productID == "" || size == "" {
		return nil, fmt.Errorf("session, product and size are required: %w", model.ErrMalformedInput)
	}
	p, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted {
		return nil, fmt.Errorf("product %s: %w", productID, model.ErrNotFound)
	}
	if p.IsSold || p.Sizes.Count(size) == 0 {
		return nil, &model.LineError{
			Line:      s.lineCount(sessionID),
			ProductID: productID,
			Size:      size,
			Requested: 1,
			Available: 0,
			Err:       model.ErrInsufficientAvailability,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[sessionID] = append(s.carts[sessionID], Line{ProductID: productID, Size: size})
	return cloneLines(s.carts[sessionID]), nil
}

// Remove drops the line at index.
func (s *Store) Remove(sessionID string, index int) ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.carts[sessionID]
	if index < 0 || index >= len(lines) {
		return nil, fmt.Errorf("cart line %d: %w", index, model.ErrNotFound)
	}
	next := make([]Line, 0, len(lines)-1)
	next = append(next, lines[:index]...)
	next = append(next, lines[index+1:]...)
	if len(next) == 0 {
		delete(s.carts, sessionID)
	} else {
		s.carts[sessionID] = next
	}
	return cloneLines(next), nil
}

// Lines returns a copy of the session's cart.
func (s *Store) Lines(sessionID string) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLines(s.carts[sessionID])
}

// Clear empties the cart.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
}

func (s *Store) lineCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts[sessionID])
}

func cloneLines(in []Line) []Line {
	out := make([]Line, len(in))
	copy(out, in)
	return out
}
