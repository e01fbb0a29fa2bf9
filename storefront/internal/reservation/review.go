package reservation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/metrics"
	"github.com/storefront-labs/orchestrator/pkg/model"
)

// Confirm commits the sale: every unit of the batch leaves the catalog in one
// transaction and the holds are released. Losing a race with expiry, reject or
// another confirm yields ResultAlreadyProcessed.
func (o *Orchestrator) Confirm(ctx context.Context, batchID string) (string, error) {
	b, ok := o.lookup(batchID)
	if !ok {
		return "", errNotFound("batch", batchID)
	}
	unlock := o.batchLocks.Lock(batchID)
	defer unlock()

	switch status := o.status(b); {
	case status == model.StatusConfirmed || status.Terminal() || status == model.StatusDispatched:
		return ResultAlreadyProcessed, nil
	case status != model.StatusSubmittedForReview:
		return "", errTransition(b, model.StatusConfirmed)
	}

	claimed, err := o.tokens.Claim(ctx, b.Token)
	if err != nil {
		return "", fmt.Errorf("claim batch token: %w", err)
	}
	if !claimed {
		return ResultAlreadyProcessed, nil
	}

	productIDs := b.ProductIDs()
	unlockProducts := o.ledger.Lock(productIDs...)
	defer unlockProducts()

	if err := o.catalog.CommitSale(ctx, b.Items); err != nil {
		o.releaseToken(b)
		if errors.Is(err, model.ErrUnitMissing) {
			o.inconsistency(b, "commit_unit_missing", err)
		} else {
			o.logger.Error("reservation.confirm_failed", zap.String("batch_id", b.ID), zap.Error(err))
			metrics.IncError("reservation", "commit_failed")
		}
		return "", err
	}

	for _, it := range b.Items {
		if !o.ledger.Release(it.ProductID, it.Size) {
			o.inconsistency(b, "hold_missing_on_confirm", fmt.Errorf("%s size %s", it.ProductID, it.Size))
		}
	}
	metrics.SetHoldsActive(o.ledger.Total())

	if err := o.transition(b, model.StatusConfirmed); err != nil {
		return "", err
	}
	// remaining availability is unchanged; refresh only to pick up sold-out state
	o.refreshBestEffort(ctx, productIDs)
	o.emit(model.EventBatchConfirmed, b, "")
	return ResultCommitted, nil
}

// Reject refuses the payment proof and releases every hold like an expiry.
func (o *Orchestrator) Reject(ctx context.Context, batchID string) (string, error) {
	b, ok := o.lookup(batchID)
	if !ok {
		return "", errNotFound("batch", batchID)
	}
	unlock := o.batchLocks.Lock(batchID)
	defer unlock()

	switch status := o.status(b); {
	case status == model.StatusConfirmed || status.Terminal() || status == model.StatusDispatched:
		return ResultAlreadyProcessed, nil
	case status != model.StatusSubmittedForReview:
		return "", errTransition(b, model.StatusExpired)
	}

	claimed, err := o.tokens.Claim(ctx, b.Token)
	if err != nil {
		return "", fmt.Errorf("claim batch token: %w", err)
	}
	if !claimed {
		return ResultAlreadyProcessed, nil
	}
	return o.release(ctx, b, model.EventBatchRejected)
}

// MarkDispatched records the carrier shipment reference.
func (o *Orchestrator) MarkDispatched(ctx context.Context, batchID, shipmentRef string) error {
	if shipmentRef == "" {
		return fmt.Errorf("shipment reference required: %w", model.ErrMalformedInput)
	}
	return o.fulfil(ctx, batchID, model.StatusDispatched, model.EventBatchDispatched, func(b *model.Batch) error {
		o.mu.Lock()
		defer o.mu.Unlock()
		if b.Order != nil {
			b.Order.ShipmentRef = shipmentRef
		}
		return nil
	})
}

// MarkPickedUp closes a delivered order.
func (o *Orchestrator) MarkPickedUp(ctx context.Context, batchID string) error {
	return o.fulfil(ctx, batchID, model.StatusPickedUp, model.EventBatchPickedUp, nil)
}

// MarkReturned puts the returned units back on sale.
func (o *Orchestrator) MarkReturned(ctx context.Context, batchID string) error {
	return o.fulfil(ctx, batchID, model.StatusReturned, model.EventBatchReturned, func(b *model.Batch) error {
		productIDs := b.ProductIDs()
		unlock := o.ledger.Lock(productIDs...)
		defer unlock()

		if err := o.catalog.RestoreUnits(ctx, b.Items); err != nil {
			return fmt.Errorf("restore units for batch %s: %w", b.ID, err)
		}
		o.refreshBestEffort(ctx, productIDs)
		return nil
	})
}

func (o *Orchestrator) fulfil(ctx context.Context, batchID string, to model.BatchStatus, eventType string, apply func(b *model.Batch) error) error {
	b, ok := o.lookup(batchID)
	if !ok {
		return errNotFound("batch", batchID)
	}
	unlock := o.batchLocks.Lock(batchID)
	defer unlock()

	if !o.status(b).CanTransition(to) {
		return errTransition(b, to)
	}
	if apply != nil {
		if err := apply(b); err != nil {
			return err
		}
	}
	if err := o.transition(b, to); err != nil {
		return err
	}
	o.emit(eventType, b, "")
	return nil
}

// WithdrawProduct takes a product off sale. It is refused while any batch
// still holds or owes units of it.
func (o *Orchestrator) WithdrawProduct(ctx context.Context, productID string) error {
	unlock := o.ledger.Lock(productID)
	defer unlock()

	p, err := o.catalog.Get(ctx, productID)
	if err != nil {
		return err
	}
	if p.IsDeleted {
		return nil
	}
	if id, busy := o.referencedBy(productID); busy {
		return fmt.Errorf("product %s in batch %s: %w", productID, id, model.ErrProductInUse)
	}

	if err := o.listings.Remove(ctx, p.ListingRef, productID); err != nil {
		return asUnavailable(err)
	}
	if err := o.catalog.MarkDeleted(ctx, productID); err != nil {
		return err
	}
	o.logger.Info("reservation.product_withdrawn",
		zap.String("product_id", productID),
		zap.String("listing_ref", p.ListingRef),
	)
	return nil
}

func (o *Orchestrator) referencedBy(productID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, b := range o.batches {
		if !b.Status.Live() && b.Status != model.StatusConfirmed {
			continue
		}
		for _, it := range b.Items {
			if it.ProductID == productID {
				return b.ID, true
			}
		}
	}
	return "", false
}

func (o *Orchestrator) status(b *model.Batch) model.BatchStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return b.Status
}

func (o *Orchestrator) releaseToken(b *model.Batch) {
	ctx, cancel := o.backgroundContext()
	defer cancel()
	if err := o.tokens.Release(ctx, b.Token); err != nil {
		o.logger.Error("reservation.token_release_failed", zap.String("batch_id", b.ID), zap.Error(err))
	}
}

func (o *Orchestrator) inconsistency(b *model.Batch, reason string, err error) {
	metrics.IncInconsistency()
	o.logger.Error("reservation.inconsistency",
		zap.Bool("critical", true),
		zap.String("reason", reason),
		zap.String("batch_id", b.ID),
		zap.Error(err),
	)
}
