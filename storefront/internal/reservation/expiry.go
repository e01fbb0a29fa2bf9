package reservation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/metrics"
	"github.com/storefront-labs/orchestrator/internal/scheduler"
	"github.com/storefront-labs/orchestrator/pkg/model"
)

func (o *Orchestrator) onExpiry(e scheduler.Expiry) {
	ctx, cancel := o.backgroundContext()
	defer cancel()
	if _, err := o.expire(ctx, e.BatchID); err != nil {
		o.logger.Error("reservation.expiry_failed", zap.String("batch_id", e.BatchID), zap.Error(err))
		metrics.IncError("reservation", "expiry_failed")
	}
}

// expire releases a batch whose deadline passed before proof arrived. Confirm
// and reject never act on a HELD batch, so the batch lock and the status check
// are enough; the token store is not consulted and its outages cannot strand
// a hold.
func (o *Orchestrator) expire(ctx context.Context, batchID string) (string, error) {
	b, ok := o.lookup(batchID)
	if !ok {
		metrics.IncExpiry("skipped")
		return ResultAlreadyProcessed, nil
	}
	unlock := o.batchLocks.Lock(batchID)
	defer unlock()

	o.mu.Lock()
	delete(o.handles, batchID)
	o.mu.Unlock()

	if o.status(b) != model.StatusHeld {
		metrics.IncExpiry("skipped")
		return ResultAlreadyProcessed, nil
	}
	result, err := o.release(ctx, b, model.EventBatchExpired)
	if err == nil {
		metrics.IncExpiry(result)
	}
	return result, err
}

// release gives every held unit of b back and restores the listings from the
// catalog as it is now, so edits made during the hold are respected. The
// caller holds the batch lock and has already won b: expiry by finding it
// HELD, reject by claiming its token.
func (o *Orchestrator) release(ctx context.Context, b *model.Batch, eventType string) (string, error) {
	productIDs := b.ProductIDs()
	unlock := o.ledger.Lock(productIDs...)
	defer unlock()

	for _, it := range b.Items {
		if !o.ledger.Release(it.ProductID, it.Size) {
			o.inconsistency(b, "hold_missing_on_release", fmt.Errorf("%s size %s", it.ProductID, it.Size))
		}
	}
	metrics.SetHoldsActive(o.ledger.Total())

	if err := o.transition(b, model.StatusExpired); err != nil {
		return "", err
	}
	o.refreshBestEffort(ctx, productIDs)

	if err := o.sessions.Delete(ctx, b.SessionID); err != nil {
		o.logger.Warn("reservation.dialog_delete_failed", zap.String("session_id", b.SessionID), zap.Error(err))
	}
	o.logger.Info("reservation.released",
		zap.String("batch_id", b.ID),
		zap.String("reason", eventType),
		zap.Int("items", len(b.Items)),
	)
	o.emit(eventType, b, "")
	return ResultReleased, nil
}
