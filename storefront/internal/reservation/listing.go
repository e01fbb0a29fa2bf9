package reservation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/metrics"
	"github.com/storefront-labs/orchestrator/pkg/model"
)

// refresh pushes the product's true availability to its listing, publishing
// it first if it has none. The caller holds the product lock.
func (o *Orchestrator) refresh(ctx context.Context, productID string) error {
	snap, err := o.calc.Snapshot(ctx, productID)
	if err != nil {
		return err
	}
	if snap.Product.IsDeleted {
		return nil
	}
	listing := snap.Listing()

	if snap.Product.ListingRef == "" {
		ref, err := o.listings.Publish(ctx, listing)
		if err != nil {
			return err
		}
		if err := o.catalog.UpdateListingRef(ctx, productID, ref); err != nil {
			// the listing exists but the catalog lost track of it
			o.logger.Error("reservation.listing_ref_update_failed",
				zap.String("product_id", productID),
				zap.String("listing_ref", ref),
				zap.Error(err),
			)
			metrics.IncError("reservation", "listing_ref_update_failed")
		}
		return nil
	}
	return o.listings.Update(ctx, listing)
}

// refreshAll stops at the first failure and reports which products were
// already pushed so the caller can put them back.
func (o *Orchestrator) refreshAll(ctx context.Context, productIDs []string) ([]string, error) {
	done := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		if err := o.refresh(ctx, id); err != nil {
			return done, fmt.Errorf("refresh listing %s: %w", id, asUnavailable(err))
		}
		done = append(done, id)
	}
	return done, nil
}

// refreshBestEffort pushes every product and logs failures; the reconciler
// heals whatever is left stale.
func (o *Orchestrator) refreshBestEffort(ctx context.Context, productIDs []string) {
	for _, id := range productIDs {
		if err := o.refresh(ctx, id); err != nil {
			o.logger.Warn("reservation.listing_refresh_failed",
				zap.String("product_id", id),
				zap.Error(err),
			)
			metrics.IncError("reservation", "listing_refresh_failed")
		}
	}
}

// restoreListings runs after a failed checkout released its holds.
func (o *Orchestrator) restoreListings(productIDs []string) {
	if len(productIDs) == 0 {
		return
	}
	ctx, cancel := o.backgroundContext()
	defer cancel()
	o.refreshBestEffort(ctx, productIDs)
}

func asUnavailable(err error) error {
	if isUnavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrPublisherUnavailable, err)
}
