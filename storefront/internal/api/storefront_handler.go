package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/availability"
	"github.com/storefront-labs/orchestrator/internal/cart"
	"github.com/storefront-labs/orchestrator/pkg/model"
	"github.com/storefront-labs/orchestrator/storefront/internal/dialog"
	"github.com/storefront-labs/orchestrator/storefront/internal/reservation"
)

// BuyerService is the buyer-facing slice of the orchestrator.
type BuyerService interface {
	Products(ctx context.Context, size string) ([]availability.Snapshot, error)
	Product(ctx context.Context, productID string) (availability.Snapshot, error)
	AddToCart(ctx context.Context, sessionID, productID, size string) ([]cart.Line, error)
	Cart(ctx context.Context, sessionID string) []cart.Line
	RemoveFromCart(ctx context.Context, sessionID string, index int) ([]cart.Line, error)
	ClearCart(ctx context.Context, sessionID string)
	Checkout(ctx context.Context, sessionID string) (model.Batch, error)
	SubmitProof(ctx context.Context, sessionID, proofRef string) (reservation.SessionView, error)
	SubmitDetails(ctx context.Context, sessionID string, field dialog.Field, value string) (reservation.SessionView, error)
	Session(ctx context.Context, sessionID string) (reservation.SessionView, error)
}

// StorefrontHandler serves buyer sessions.
type StorefrontHandler struct {
	logger  *zap.Logger
	service BuyerService
}

func NewStorefrontHandler(logger *zap.Logger, service BuyerService) *StorefrontHandler {
	return &StorefrontHandler{logger: logger, service: service}
}

// ListProducts handles GET /products?size=40.
func (h *StorefrontHandler) ListProducts(c *fiber.Ctx) error {
	snaps, err := h.service.Products(c.UserContext(), c.Query("size"))
	if err != nil {
		h.logger.Error("api.list_products.failed", zap.Error(err))
		return writeError(c, err)
	}
	out := make([]ProductView, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, toProductView(s))
	}
	return c.JSON(out)
}

func (h *StorefrontHandler) GetProduct(c *fiber.Ctx) error {
	snap, err := h.service.Product(c.UserContext(), c.Params("productId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toProductView(snap))
}

func (h *StorefrontHandler) AddToCart(c *fiber.Ctx) error {
	var req CartAddRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	lines, err := h.service.AddToCart(c.UserContext(), c.Params("sessionId"), req.ProductID, req.Size)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"cart": lines})
}

func (h *StorefrontHandler) GetCart(c *fiber.Ctx) error {
	lines := h.service.Cart(c.UserContext(), c.Params("sessionId"))
	if lines == nil {
		lines = []cart.Line{}
	}
	return c.JSON(fiber.Map{"cart": lines})
}

func (h *StorefrontHandler) ClearCart(c *fiber.Ctx) error {
	h.service.ClearCart(c.UserContext(), c.Params("sessionId"))
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveLine handles DELETE /cart/:line with a zero-based line index.
func (h *StorefrontHandler) RemoveLine(c *fiber.Ctx) error {
	index, err := c.ParamsInt("line")
	if err != nil {
		return badRequest(c, "line must be an integer")
	}
	lines, err := h.service.RemoveFromCart(c.UserContext(), c.Params("sessionId"), index)
	if err != nil {
		return writeError(c, err)
	}
	if lines == nil {
		lines = []cart.Line{}
	}
	return c.JSON(fiber.Map{"cart": lines})
}

func (h *StorefrontHandler) Checkout(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	b, err := h.service.Checkout(c.UserContext(), sessionID)
	if err != nil {
		h.logger.Info("api.checkout.refused", zap.String("session_id", sessionID), zap.Error(err))
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(b)
}

func (h *StorefrontHandler) SubmitProof(c *fiber.Ctx) error {
	var req ProofRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	view, err := h.service.SubmitProof(c.UserContext(), c.Params("sessionId"), req.ProofRef)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(view)
}

func (h *StorefrontHandler) SubmitDetails(c *fiber.Ctx) error {
	var req DetailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	view, err := h.service.SubmitDetails(c.UserContext(), c.Params("sessionId"), parseField(req.Field), req.Value)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(view)
}

func (h *StorefrontHandler) GetSession(c *fiber.Ctx) error {
	view, err := h.service.Session(c.UserContext(), c.Params("sessionId"))
	if err != nil {
		return writeError(c, err)
	}
	if view.Cart == nil {
		view.Cart = []cart.Line{}
	}
	return c.JSON(view)
}
