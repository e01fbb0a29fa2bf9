package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

// MemoryCatalog is a Catalog kept in process memory, used in dev mode and tests.
type MemoryCatalog struct {
	mu       sync.Mutex
	products map[string]model.Product
	order    []string
	now      func() time.Time

	// FailCommit, when set, is returned by CommitSale before anything is written.
	FailCommit error
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		products: make(map[string]model.Product),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryCatalog) Get(_ context.Context, productID string) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return model.Product{}, fmt.Errorf("product %s: %w", productID, model.ErrNotFound)
	}
	return cloneProduct(p), nil
}

func (m *MemoryCatalog) ListUnsold(_ context.Context) ([]model.Product, error) {
	return m.filter(func(p model.Product) bool { return true }), nil
}

func (m *MemoryCatalog) ListBySize(_ context.Context, size string) ([]model.Product, error) {
	return m.filter(func(p model.Product) bool { return p.Sizes.Count(size) > 0 }), nil
}

func (m *MemoryCatalog) filter(keep func(model.Product) bool) []model.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Product
	for _, id := range m.order {
		p := m.products[id]
		if p.IsSold || p.IsDeleted || !keep(p) {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	return out
}

func (m *MemoryCatalog) Create(_ context.Context, p model.Product) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := m.products[p.ID]; exists {
		return model.Product{}, fmt.Errorf("product %s already exists: %w", p.ID, model.ErrMalformedInput)
	}
	p.Sizes = p.Sizes.Sorted()
	p.IsSold = len(p.Sizes) == 0
	p.UpdatedAt = m.now()
	m.products[p.ID] = cloneProduct(p)
	m.order = append(m.order, p.ID)
	return cloneProduct(p), nil
}

func (m *MemoryCatalog) UpdateSizes(_ context.Context, productID string, sizes model.Sizes) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.IsDeleted {
		return model.Product{}, fmt.Errorf("product %s: %w", productID, model.ErrNotFound)
	}
	p.Sizes = sizes.Sorted()
	p.IsSold = len(p.Sizes) == 0
	p.UpdatedAt = m.now()
	m.products[productID] = p
	return cloneProduct(p), nil
}

func (m *MemoryCatalog) UpdatePrice(_ context.Context, productID string, price decimal.Decimal) error {
	return m.mutate(productID, func(p *model.Product) { p.Price = price })
}

func (m *MemoryCatalog) UpdateListingRef(_ context.Context, productID, ref string) error {
	return m.mutate(productID, func(p *model.Product) { p.ListingRef = ref })
}

func (m *MemoryCatalog) MarkDeleted(_ context.Context, productID string) error {
	return m.mutate(productID, func(p *model.Product) { p.IsDeleted = true })
}

func (m *MemoryCatalog) mutate(productID string, fn func(p *model.Product)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, model.ErrNotFound)
	}
	fn(&p)
	p.UpdatedAt = m.now()
	m.products[productID] = p
	return nil
}

func (m *MemoryCatalog) CommitSale(_ context.Context, items []model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommit != nil {
		return m.FailCommit
	}

	ids, grouped := groupByProduct(items)
	staged := make(map[string]model.Product, len(ids))
	for _, id := range ids {
		p, ok := m.products[id]
		if !ok {
			return fmt.Errorf("product %s: %w", id, model.ErrUnitMissing)
		}
		sizes := p.Sizes
		for _, size := range grouped[id] {
			next, ok := sizes.Without(size)
			if !ok {
				return fmt.Errorf("product %s size %s: %w", id, size, model.ErrUnitMissing)
			}
			sizes = next
		}
		p.Sizes = sizes.Sorted()
		p.IsSold = len(p.Sizes) == 0
		p.UpdatedAt = m.now()
		staged[id] = p
	}
	for id, p := range staged {
		m.products[id] = p
	}
	return nil
}

func (m *MemoryCatalog) RestoreUnits(_ context.Context, items []model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, grouped := groupByProduct(items)
	for _, id := range ids {
		if _, ok := m.products[id]; !ok {
			return fmt.Errorf("product %s: %w", id, model.ErrNotFound)
		}
	}
	for _, id := range ids {
		p := m.products[id]
		for _, size := range grouped[id] {
			p.Sizes = p.Sizes.With(size)
		}
		p.IsSold = false
		p.UpdatedAt = m.now()
		m.products[id] = p
	}
	return nil
}

func (m *MemoryCatalog) HealthCheck(context.Context) error { return nil }

func (m *MemoryCatalog) Close() error { return nil }

func cloneProduct(p model.Product) model.Product {
	out := p
	out.Sizes = append(model.Sizes(nil), p.Sizes...)
	if p.SubAttributes != nil {
		out.SubAttributes = make(map[string]string, len(p.SubAttributes))
		for k, v := range p.SubAttributes {
			out.SubAttributes[k] = v
		}
	}
	return out
}
