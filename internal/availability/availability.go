// Package availability derives what is purchasable from catalog sizes minus ledger holds.
package availability

import (
	"context"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

// Counts returns label -> purchasable units. Labels with nothing left are
// omitted and counts never go below zero.
func Counts(sizes model.Sizes, held map[string]int) map[string]int {
	out := make(map[string]int)
	for label, n := range sizes.Counts() {
		if left := n - held[label]; left > 0 {
			out[label] = left
		}
	}
	return out
}

// Remaining returns the ordered multiset with held units removed.
func Remaining(sizes model.Sizes, held map[string]int) model.Sizes {
	skip := make(map[string]int, len(held))
	for label, n := range held {
		skip[label] = n
	}
	out := make(model.Sizes, 0, len(sizes))
	for _, label := range sizes.Sorted() {
		if skip[label] > 0 {
			skip[label]--
			continue
		}
		out = append(out, label)
	}
	return out
}

// CatalogReader is the catalog slice the calculator needs.
type CatalogReader interface {
	Get(ctx context.Context, productID string) (model.Product, error)
}

// HoldReader is the ledger slice the calculator needs.
type HoldReader interface {
	Held(productID string) map[string]int
}

// Snapshot is a consistent view of one product.
type Snapshot struct {
	Product   model.Product
	Held      map[string]int
	Counts    map[string]int
	Remaining model.Sizes
}

// Available returns purchasable units of one size.
func (s Snapshot) Available(size string) int {
	return s.Counts[size]
}

// Listing renders the public view of the snapshot.
func (s Snapshot) Listing() model.Listing {
	return model.NewListing(s.Product, s.Remaining)
}

// Calculator reads catalog and ledger together.
type Calculator struct {
	catalog CatalogReader
	holds   HoldReader
}

func NewCalculator(catalog CatalogReader, holds HoldReader) *Calculator {
	return &Calculator{catalog: catalog, holds: holds}
}

// Snapshot loads the product and its holds. The caller must hold the product
// lock for the result to stay valid.
func (c *Calculator) Snapshot(ctx context.Context, productID string) (Snapshot, error) {
	p, err := c.catalog.Get(ctx, productID)
	if err != nil {
		return Snapshot{}, err
	}
	held := c.holds.Held(productID)
	return Snapshot{
		Product:   p,
		Held:      held,
		Counts:    Counts(p.Sizes, held),
		Remaining: Remaining(p.Sizes, held),
	}, nil
}
