package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/availability"
	"github.com/storefront-labs/orchestrator/internal/metrics"
	"github.com/storefront-labs/orchestrator/pkg/model"
)

// Catalog is the catalog slice the reconciler needs.
type Catalog interface {
	ListUnsold(ctx context.Context) ([]model.Product, error)
	Get(ctx context.Context, productID string) (model.Product, error)
	UpdateListingRef(ctx context.Context, productID, ref string) error
}

// Holds is the ledger slice the reconciler needs.
type Holds interface {
	Lock(productIDs ...string) (unlock func())
	Held(productID string) map[string]int
}

// Listings is the publisher slice the reconciler needs.
type Listings interface {
	Publish(ctx context.Context, l model.Listing) (string, error)
	Update(ctx context.Context, l model.Listing) error
}

// ListingReconciler periodically pushes true availability for every unsold
// product, healing best-effort refreshes that failed earlier and publishing
// products that never got a listing.
type ListingReconciler struct {
	logger   *zap.Logger
	catalog  Catalog
	holds    Holds
	listings Listings
	interval time.Duration
	stopCh   chan struct{}
}

func NewListingReconciler(logger *zap.Logger, catalog Catalog, holds Holds, listings Listings, interval time.Duration) *ListingReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingReconciler{
		logger:   logger,
		catalog:  catalog,
		holds:    holds,
		listings: listings,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one pass immediately, then every interval.
func (r *ListingReconciler) Start(ctx context.Context) {
	r.logger.Info("listing_reconciler.started", zap.Duration("interval", r.interval))
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-r.stopCh:
			r.logger.Info("listing_reconciler.stopped (manual stop)")
			return
		case <-ctx.Done():
			r.logger.Info("listing_reconciler.stopped (context canceled)")
			return
		}
	}
}

// Stop gracefully halts the reconciler.
func (r *ListingReconciler) Stop() {
	close(r.stopCh)
}

// RunOnce executes one reconcile cycle and reports how many listings were pushed.
func (r *ListingReconciler) RunOnce(ctx context.Context) int {
	start := time.Now()
	products, err := r.catalog.ListUnsold(ctx)
	if err != nil {
		r.logger.Error("listing_reconciler.list_failed", zap.Error(err))
		metrics.IncError("reconciler", "list_failed")
		return 0
	}

	pushed := 0
	for _, p := range products {
		if ctx.Err() != nil {
			break
		}
		if r.reconcile(ctx, p.ID) {
			pushed++
		}
	}

	metrics.SetLastReconcile(time.Now())
	r.logger.Info("listing_reconciler.success",
		zap.Int("products", len(products)),
		zap.Int("pushed", pushed),
		zap.Duration("duration", time.Since(start)),
	)
	return pushed
}

func (r *ListingReconciler) reconcile(ctx context.Context, productID string) bool {
	unlock := r.holds.Lock(productID)
	defer unlock()

	// re-read under the lock; the list may be stale
	p, err := r.catalog.Get(ctx, productID)
	if err != nil || p.IsDeleted {
		return false
	}
	listing := model.NewListing(p, availability.Remaining(p.Sizes, r.holds.Held(productID)))

	if p.ListingRef == "" {
		ref, err := r.listings.Publish(ctx, listing)
		if err != nil {
			r.logger.Warn("listing_reconciler.publish_failed", zap.String("product_id", productID), zap.Error(err))
			return false
		}
		if err := r.catalog.UpdateListingRef(ctx, productID, ref); err != nil {
			r.logger.Error("listing_reconciler.ref_update_failed",
				zap.String("product_id", productID),
				zap.String("listing_ref", ref),
				zap.Error(err),
			)
			metrics.IncError("reconciler", "ref_update_failed")
		}
		return true
	}

	if err := r.listings.Update(ctx, listing); err != nil {
		r.logger.Warn("listing_reconciler.update_failed", zap.String("product_id", productID), zap.Error(err))
		return false
	}
	return true
}
