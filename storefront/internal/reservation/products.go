package reservation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/availability"
	"github.com/storefront-labs/orchestrator/pkg/model"
)

// ProductEdit changes a product's stock or price. Nil fields are left alone;
// a non-nil empty Sizes sells the product out.
type ProductEdit struct {
	Sizes model.Sizes
	Price *decimal.Decimal
}

// AddProduct records a new product and publishes its listing. A failed
// publication is left for the reconciler; the product is already on record.
func (o *Orchestrator) AddProduct(ctx context.Context, p model.Product) (availability.Snapshot, error) {
	if !p.Price.IsPositive() {
		return availability.Snapshot{}, fmt.Errorf("price must be positive: %w", model.ErrMalformedInput)
	}
	p.ListingRef = ""
	created, err := o.catalog.Create(ctx, p)
	if err != nil {
		return availability.Snapshot{}, err
	}

	unlock := o.ledger.Lock(created.ID)
	defer unlock()
	o.refreshBestEffort(ctx, []string{created.ID})
	o.logger.Info("reservation.product_added",
		zap.String("product_id", created.ID),
		zap.Strings("sizes", created.Sizes),
	)
	return o.calc.Snapshot(ctx, created.ID)
}

// EditProduct applies a stock or price edit under the product lock and pushes
// the result to the listing. Stock may not drop below what buyers hold.
func (o *Orchestrator) EditProduct(ctx context.Context, productID string, edit ProductEdit) (availability.Snapshot, error) {
	if edit.Price != nil && !edit.Price.IsPositive() {
		return availability.Snapshot{}, fmt.Errorf("price must be positive: %w", model.ErrMalformedInput)
	}

	unlock := o.ledger.Lock(productID)
	defer unlock()

	p, err := o.catalog.Get(ctx, productID)
	if err != nil {
		return availability.Snapshot{}, err
	}
	if p.IsDeleted {
		return availability.Snapshot{}, errNotFound("product", productID)
	}

	if edit.Sizes != nil {
		for size, held := range o.ledger.Held(productID) {
			if edit.Sizes.Count(size) < held {
				return availability.Snapshot{}, fmt.Errorf("product %s size %s has %d held: %w",
					productID, size, held, model.ErrProductInUse)
			}
		}
		if _, err := o.catalog.UpdateSizes(ctx, productID, edit.Sizes); err != nil {
			return availability.Snapshot{}, err
		}
	}
	if edit.Price != nil {
		if err := o.catalog.UpdatePrice(ctx, productID, *edit.Price); err != nil {
			return availability.Snapshot{}, err
		}
	}

	o.refreshBestEffort(ctx, []string{productID})
	o.logger.Info("reservation.product_edited",
		zap.String("product_id", productID),
		zap.Bool("sizes", edit.Sizes != nil),
		zap.Bool("price", edit.Price != nil),
	)
	return o.calc.Snapshot(ctx, productID)
}
