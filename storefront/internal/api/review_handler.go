package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/availability"
	"github.com/storefront-labs/orchestrator/pkg/model"
	"github.com/storefront-labs/orchestrator/storefront/internal/reservation"
)

// ReviewService is the reviewer-facing slice of the orchestrator.
type ReviewService interface {
	ListPendingBatches(ctx context.Context) []model.Batch
	Batch(ctx context.Context, batchID string) (model.Batch, error)
	Confirm(ctx context.Context, batchID string) (string, error)
	Reject(ctx context.Context, batchID string) (string, error)
	MarkDispatched(ctx context.Context, batchID, shipmentRef string) error
	MarkPickedUp(ctx context.Context, batchID string) error
	MarkReturned(ctx context.Context, batchID string) error
	WithdrawProduct(ctx context.Context, productID string) error
	AddProduct(ctx context.Context, p model.Product) (availability.Snapshot, error)
	EditProduct(ctx context.Context, productID string, edit reservation.ProductEdit) (availability.Snapshot, error)
}

// ReviewHandler serves the human reviewer.
type ReviewHandler struct {
	logger  *zap.Logger
	service ReviewService
}

func NewReviewHandler(logger *zap.Logger, service ReviewService) *ReviewHandler {
	return &ReviewHandler{logger: logger, service: service}
}

func (h *ReviewHandler) ListPending(c *fiber.Ctx) error {
	batches := h.service.ListPendingBatches(c.UserContext())
	if batches == nil {
		batches = []model.Batch{}
	}
	return c.JSON(batches)
}

func (h *ReviewHandler) GetBatch(c *fiber.Ctx) error {
	b, err := h.service.Batch(c.UserContext(), c.Params("batchId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(b)
}

// Confirm commits the sale. A batch already settled by anyone answers 200
// with result already_processed.
func (h *ReviewHandler) Confirm(c *fiber.Ctx) error {
	return h.decide(c, "confirm", h.service.Confirm)
}

func (h *ReviewHandler) Reject(c *fiber.Ctx) error {
	return h.decide(c, "reject", h.service.Reject)
}

func (h *ReviewHandler) decide(c *fiber.Ctx, action string, fn func(context.Context, string) (string, error)) error {
	batchID := c.Params("batchId")
	result, err := fn(c.UserContext(), batchID)
	if err != nil {
		h.logger.Warn("api.review.failed",
			zap.String("action", action),
			zap.String("batch_id", batchID),
			zap.Error(err))
		return writeError(c, err)
	}
	h.logger.Info("api.review",
		zap.String("action", action),
		zap.String("batch_id", batchID),
		zap.String("result", result))
	return c.JSON(ReviewResult{BatchID: batchID, Result: result})
}

func (h *ReviewHandler) Dispatch(c *fiber.Ctx) error {
	var req DispatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	batchID := c.Params("batchId")
	return h.fulfil(c, batchID, func(ctx context.Context) error {
		return h.service.MarkDispatched(ctx, batchID, req.ShipmentRef)
	})
}

func (h *ReviewHandler) PickedUp(c *fiber.Ctx) error {
	batchID := c.Params("batchId")
	return h.fulfil(c, batchID, func(ctx context.Context) error {
		return h.service.MarkPickedUp(ctx, batchID)
	})
}

func (h *ReviewHandler) Returned(c *fiber.Ctx) error {
	batchID := c.Params("batchId")
	return h.fulfil(c, batchID, func(ctx context.Context) error {
		return h.service.MarkReturned(ctx, batchID)
	})
}

func (h *ReviewHandler) fulfil(c *fiber.Ctx, batchID string, fn func(context.Context) error) error {
	if err := fn(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	b, err := h.service.Batch(c.UserContext(), batchID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(b)
}

func (h *ReviewHandler) WithdrawProduct(c *fiber.Ctx) error {
	productID := c.Params("productId")
	if err := h.service.WithdrawProduct(c.UserContext(), productID); err != nil {
		h.logger.Warn("api.withdraw.failed", zap.String("product_id", productID), zap.Error(err))
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ReviewHandler) CreateProduct(c *fiber.Ctx) error {
	var req ProductRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	snap, err := h.service.AddProduct(c.UserContext(), req.product())
	if err != nil {
		h.logger.Warn("api.product_create.failed", zap.Error(err))
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toProductView(snap))
}

// EditProduct changes stock or price and answers with the refreshed view.
// Stock below what buyers currently hold is refused with 409.
func (h *ReviewHandler) EditProduct(c *fiber.Ctx) error {
	var req ProductEditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	productID := c.Params("productId")
	snap, err := h.service.EditProduct(c.UserContext(), productID, req.edit())
	if err != nil {
		h.logger.Warn("api.product_edit.failed", zap.String("product_id", productID), zap.Error(err))
		return writeError(c, err)
	}
	return c.JSON(toProductView(snap))
}
