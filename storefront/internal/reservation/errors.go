package reservation

import (
	"errors"
	"fmt"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

func errNotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
}

func errTransition(b *model.Batch, to model.BatchStatus) error {
	return fmt.Errorf("batch %s %s -> %s: %w", b.ID, b.Status, to, model.ErrInvalidTransition)
}

func isUnavailable(err error) bool {
	return errors.Is(err, model.ErrPublisherUnavailable)
}
