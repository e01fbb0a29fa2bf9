package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/availability"
	"github.com/storefront-labs/orchestrator/internal/cart"
	"github.com/storefront-labs/orchestrator/internal/metrics"
	"github.com/storefront-labs/orchestrator/pkg/model"
	"github.com/storefront-labs/orchestrator/storefront/internal/dialog"
)

// AddToCart records purchase intent. Nothing is held yet.
func (o *Orchestrator) AddToCart(ctx context.Context, sessionID, productID, size string) ([]cart.Line, error) {
	return o.carts.Add(ctx, sessionID, productID, size)
}

// Cart returns the session's cart lines.
func (o *Orchestrator) Cart(_ context.Context, sessionID string) []cart.Line {
	return o.carts.Lines(sessionID)
}

// RemoveFromCart drops one line.
func (o *Orchestrator) RemoveFromCart(_ context.Context, sessionID string, index int) ([]cart.Line, error) {
	return o.carts.Remove(sessionID, index)
}

// ClearCart empties the cart.
func (o *Orchestrator) ClearCart(_ context.Context, sessionID string) {
	o.carts.Clear(sessionID)
}

// Checkout holds every cart line or none. On success the cart is cleared, the
// listings show the reduced availability, and the reservation timer is armed.
func (o *Orchestrator) Checkout(ctx context.Context, sessionID string) (model.Batch, error) {
	unlockSession := o.sessionLocks.Lock(sessionID)
	defer unlockSession()

	if b, ok := o.latestBatch(sessionID); ok && o.isLive(b) {
		metrics.IncCheckout("busy")
		return model.Batch{}, fmt.Errorf("session %s batch %s: %w", sessionID, b.ID, model.ErrSessionBusy)
	}

	lines := o.carts.Lines(sessionID)
	if len(lines) == 0 {
		metrics.IncCheckout("rejected")
		return model.Batch{}, model.ErrEmptyCart
	}

	productIDs := distinctProducts(lines)
	unlock := o.ledger.Lock(productIDs...)
	defer unlock()

	items, err := o.validate(ctx, lines)
	if err != nil {
		metrics.IncCheckout("rejected")
		o.logger.Info("reservation.checkout.rejected",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return model.Batch{}, err
	}

	for _, it := range items {
		o.ledger.Place(it.ProductID, it.Size)
	}

	refreshed, err := o.refreshAll(ctx, productIDs)
	if err != nil {
		for _, it := range items {
			o.ledger.Release(it.ProductID, it.Size)
		}
		o.restoreListings(refreshed)
		metrics.SetHoldsActive(o.ledger.Total())
		metrics.IncCheckout("publisher_unavailable")
		o.logger.Warn("reservation.checkout.publisher_unavailable",
			zap.String("session_id", sessionID),
			zap.Strings("product_ids", productIDs),
			zap.Error(err),
		)
		return model.Batch{}, err
	}

	now := o.clock.Now()
	b := &model.Batch{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		SessionID: sessionID,
		Items:     items,
		Status:    model.StatusHeld,
		Deadline:  o.window.Deadline(now),
		CreatedAt: now,
		UpdatedAt: now,
	}

	o.mu.Lock()
	o.batches[b.ID] = b
	o.latest[sessionID] = b.ID
	o.mu.Unlock()

	h := o.timers.Schedule(b.ID, b.Deadline, nil)
	o.mu.Lock()
	o.handles[b.ID] = h
	o.mu.Unlock()

	o.carts.Clear(sessionID)
	if err := o.sessions.Save(ctx, sessionID, dialog.New(sessionID, b.ID, now)); err != nil {
		// the dialog restarts itself on the next answer
		o.logger.Warn("reservation.dialog_save_failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	metrics.SetHoldsActive(o.ledger.Total())
	metrics.IncCheckout("held")
	metrics.IncTransition(string(model.StatusHeld))
	o.logger.Info("reservation.checkout.held",
		zap.String("session_id", sessionID),
		zap.String("batch_id", b.ID),
		zap.Int("items", len(items)),
		zap.Time("deadline", b.Deadline),
	)
	o.emit(model.EventBatchHeld, b, "")

	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneBatch(b), nil
}

// validate checks every line against availability, counting repeated
// (product, size) lines cumulatively. Callers hold the product locks.
func (o *Orchestrator) validate(ctx context.Context, lines []cart.Line) ([]model.Item, error) {
	snaps := make(map[string]availability.Snapshot)
	requested := make(map[cart.Line]int)
	items := make([]model.Item, 0, len(lines))

	for i, line := range lines {
		snap, ok := snaps[line.ProductID]
		if !ok {
			s, err := o.calc.Snapshot(ctx, line.ProductID)
			if err != nil && !errors.Is(err, model.ErrNotFound) {
				return nil, err
			}
			if err != nil || s.Product.IsDeleted {
				return nil, &model.LineError{Line: i, ProductID: line.ProductID, Size: line.Size, Requested: 1, Err: model.ErrNotFound}
			}
			snap = s
			snaps[line.ProductID] = snap
		}

		requested[line]++
		if avail := snap.Available(line.Size); requested[line] > avail {
			return nil, &model.LineError{
				Line:      i,
				ProductID: line.ProductID,
				Size:      line.Size,
				Requested: requested[line],
				Available: avail,
				Err:       model.ErrInsufficientAvailability,
			}
		}

		items = append(items, model.Item{
			ProductID:    line.ProductID,
			Size:         line.Size,
			Price:        snap.Product.Price,
			SubAttribute: snap.Product.SubAttributes[line.Size],
		})
	}
	return items, nil
}

func (o *Orchestrator) isLive(b *model.Batch) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return b.Status.Live()
}

func distinctProducts(lines []cart.Line) []string {
	seen := make(map[string]struct{}, len(lines))
	var out []string
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		out = append(out, l.ProductID)
	}
	return out
}
