package store

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

// Catalog is the durable record of what physically exists.
type Catalog interface {
	Get(ctx context.Context, productID string) (model.Product, error)
	ListUnsold(ctx context.Context) ([]model.Product, error)
	ListBySize(ctx context.Context, size string) ([]model.Product, error)
	Create(ctx context.Context, p model.Product) (model.Product, error)
	UpdateSizes(ctx context.Context, productID string, sizes model.Sizes) (model.Product, error)
	UpdatePrice(ctx context.Context, productID string, price decimal.Decimal) error
	UpdateListingRef(ctx context.Context, productID, ref string) error
	MarkDeleted(ctx context.Context, productID string) error
	// CommitSale removes one unit per item in a single transaction. Nothing is
	// written when any unit is absent; the error wraps model.ErrUnitMissing.
	CommitSale(ctx context.Context, items []model.Item) error
	// RestoreUnits puts one unit per item back in a single transaction.
	RestoreUnits(ctx context.Context, items []model.Item) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// groupByProduct returns product -> sizes, with product ids sorted so row
// locks are always taken in the same order.
func groupByProduct(items []model.Item) ([]string, map[string][]string) {
	grouped := make(map[string][]string)
	for _, it := range items {
		grouped[it.ProductID] = append(grouped[it.ProductID], it.Size)
	}
	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, grouped
}
