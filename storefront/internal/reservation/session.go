package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/cart"
	"github.com/storefront-labs/orchestrator/pkg/model"
	"github.com/storefront-labs/orchestrator/pkg/utils"
	"github.com/storefront-labs/orchestrator/storefront/internal/dialog"
)

// SessionView is what a buyer sees about their session.
type SessionView struct {
	SessionID string       `json:"session_id"`
	Cart      []cart.Line  `json:"cart"`
	Batch     *model.Batch `json:"batch,omitempty"`
	Step      dialog.Step  `json:"step,omitempty"`
	Prompt    string       `json:"prompt,omitempty"`
}

// Session returns the cart, the most recent batch and the dialog position.
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (SessionView, error) {
	view := SessionView{SessionID: sessionID, Cart: o.carts.Lines(sessionID)}

	b, ok := o.latestBatch(sessionID)
	if !ok {
		return view, nil
	}
	unlock := o.batchLocks.Lock(b.ID)
	defer unlock()

	o.mu.Lock()
	snapshot := cloneBatch(b)
	o.mu.Unlock()
	view.Batch = &snapshot

	if snapshot.Status.Live() {
		st, found, err := o.loadDialog(ctx, b)
		if err != nil {
			return SessionView{}, err
		}
		if !found {
			st = o.lapsedDialog(b)
		}
		view.Step = st.Step
		view.Prompt = dialog.Prompt(st.Step, o.carriers, st.Carrier)
	}
	return view, nil
}

// SubmitProof attaches the payment proof and stops the reservation clock.
func (o *Orchestrator) SubmitProof(ctx context.Context, sessionID, proofRef string) (SessionView, error) {
	b, ok := o.latestBatch(sessionID)
	if !ok {
		return SessionView{}, errNotFound("reservation for session", sessionID)
	}

	if err := o.submitProof(ctx, b, proofRef); err != nil {
		return SessionView{}, err
	}
	return o.Session(ctx, sessionID)
}

func (o *Orchestrator) submitProof(ctx context.Context, b *model.Batch, proofRef string) error {
	unlock := o.batchLocks.Lock(b.ID)
	defer unlock()

	o.mu.Lock()
	status := b.Status
	o.mu.Unlock()
	switch {
	case status == model.StatusExpired:
		return fmt.Errorf("batch %s: %w", b.ID, model.ErrReservationExpired)
	case status != model.StatusHeld:
		return errTransition(b, model.StatusProofSubmitted)
	}

	now := o.clock.Now()
	st := dialog.New(b.SessionID, b.ID, now)
	next, err := dialog.Advance(st, dialog.FieldProof, proofRef, o.carriers, now)
	if err != nil {
		return err
	}

	if !o.cancelTimer(b.ID) {
		// the timer already fired and expiry is waiting on the batch lock
		return fmt.Errorf("batch %s: %w", b.ID, model.ErrReservationExpired)
	}

	o.mu.Lock()
	b.ProofRef = next.Proof
	o.mu.Unlock()
	if err := o.transition(b, model.StatusProofSubmitted); err != nil {
		return err
	}
	o.saveDialog(ctx, next)
	o.logger.Info("reservation.proof_submitted",
		zap.String("batch_id", b.ID),
		zap.String("session_id", b.SessionID),
	)
	return nil
}

// SubmitDetails accepts one shipping detail. When the last one is accepted the
// order is built and handed to review.
func (o *Orchestrator) SubmitDetails(ctx context.Context, sessionID string, field dialog.Field, value string) (SessionView, error) {
	b, ok := o.latestBatch(sessionID)
	if !ok {
		return SessionView{}, errNotFound("reservation for session", sessionID)
	}
	if err := o.submitDetail(ctx, b, field, value); err != nil {
		return SessionView{}, err
	}
	return o.Session(ctx, sessionID)
}

func (o *Orchestrator) submitDetail(ctx context.Context, b *model.Batch, field dialog.Field, value string) error {
	unlock := o.batchLocks.Lock(b.ID)
	defer unlock()

	o.mu.Lock()
	status := b.Status
	o.mu.Unlock()
	switch status {
	case model.StatusExpired:
		return fmt.Errorf("batch %s: %w", b.ID, model.ErrReservationExpired)
	case model.StatusProofSubmitted, model.StatusDetailsCollected:
	default:
		return errTransition(b, model.StatusDetailsCollected)
	}

	st, found, err := o.loadDialog(ctx, b)
	if err != nil {
		return err
	}
	if !found {
		o.saveDialog(ctx, o.lapsedDialog(b))
		o.logger.Info("reservation.dialog_restarted", zap.String("batch_id", b.ID))
		return &dialog.FieldError{
			Field:  dialog.FieldName,
			Prompt: dialog.Prompt(dialog.StepName, o.carriers, ""),
			Err:    dialog.ErrDialogRestarted,
		}
	}

	next, err := dialog.Advance(st, field, value, o.carriers, o.clock.Now())
	if err != nil {
		return err
	}
	if err := o.transition(b, model.StatusDetailsCollected); err != nil {
		return err
	}
	o.saveDialog(ctx, next)
	if !next.Complete() {
		return nil
	}

	o.mu.Lock()
	b.Order = &model.Order{
		ID:        uuid.NewString(),
		BatchID:   b.ID,
		BuyerID:   b.SessionID,
		Items:     append([]model.Item(nil), b.Items...),
		Shipping:  next.Shipping(),
		ProofRef:  b.ProofRef,
		CreatedAt: o.clock.Now(),
	}
	o.mu.Unlock()
	if err := o.transition(b, model.StatusSubmittedForReview); err != nil {
		return err
	}

	o.mu.Lock()
	summary := RenderSummary(*b, o.carriers)
	o.mu.Unlock()
	o.logger.Info("reservation.submitted_for_review",
		zap.String("batch_id", b.ID),
		zap.String("phone", utils.MaskPhone(next.Phone)),
	)
	o.emit(model.EventBatchSubmitted, b, summary)
	return nil
}

// loadDialog reads the stored dialog; found is false once it lapsed.
func (o *Orchestrator) loadDialog(ctx context.Context, b *model.Batch) (dialog.State, bool, error) {
	var st dialog.State
	found, err := o.sessions.Load(ctx, b.SessionID, &st)
	if err != nil {
		return dialog.State{}, false, fmt.Errorf("load dialog %s: %w", b.SessionID, err)
	}
	if found && st.BatchID != b.ID {
		// left over from an older batch
		return dialog.State{}, false, nil
	}
	return st, found, nil
}

// lapsedDialog rebuilds the dialog position when stored state is gone. A held
// batch still waits for proof; after proof collection restarts at the name.
func (o *Orchestrator) lapsedDialog(b *model.Batch) dialog.State {
	now := o.clock.Now()
	o.mu.Lock()
	defer o.mu.Unlock()
	st := dialog.New(b.SessionID, b.ID, now)
	if b.Status == model.StatusHeld {
		return st
	}
	if b.Status == model.StatusSubmittedForReview {
		st.Step = dialog.StepComplete
		st.Proof = b.ProofRef
		return st
	}
	st.Proof = b.ProofRef
	return st.Restart(now)
}

func (o *Orchestrator) saveDialog(ctx context.Context, st dialog.State) {
	if err := o.sessions.Save(ctx, st.SessionID, st); err != nil {
		o.logger.Warn("reservation.dialog_save_failed",
			zap.String("session_id", st.SessionID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) cancelTimer(batchID string) bool {
	o.mu.Lock()
	h, ok := o.handles[batchID]
	delete(o.handles, batchID)
	o.mu.Unlock()
	if !ok {
		return false
	}
	return o.timers.Cancel(h)
}

// IsRestart reports whether err means the buyer must start the details again.
func IsRestart(err error) bool {
	return errors.Is(err, dialog.ErrDialogRestarted)
}
