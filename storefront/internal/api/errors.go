package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/storefront-labs/orchestrator/pkg/model"
	"github.com/storefront-labs/orchestrator/storefront/internal/dialog"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string           `json:"error"`
	Code      string           `json:"code"`
	Retryable bool             `json:"retryable,omitempty"`
	Line      *model.LineError `json:"line,omitempty"`
	Field     string           `json:"field,omitempty"`
	Prompt    string           `json:"prompt,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrInsufficientAvailability):
		return fiber.StatusConflict, "insufficient_availability"
	case errors.Is(err, model.ErrPublisherUnavailable):
		return fiber.StatusServiceUnavailable, "publisher_unavailable"
	case errors.Is(err, dialog.ErrDialogRestarted):
		return fiber.StatusUnprocessableEntity, "dialog_restarted"
	case errors.Is(err, model.ErrMalformedInput):
		return fiber.StatusUnprocessableEntity, "malformed_input"
	case errors.Is(err, model.ErrReservationExpired):
		return fiber.StatusGone, "reservation_expired"
	case errors.Is(err, model.ErrSessionBusy):
		return fiber.StatusConflict, "session_busy"
	case errors.Is(err, model.ErrInvalidTransition):
		return fiber.StatusConflict, "invalid_transition"
	case errors.Is(err, model.ErrProductInUse):
		return fiber.StatusConflict, "product_in_use"
	case errors.Is(err, model.ErrEmptyCart):
		return fiber.StatusBadRequest, "empty_cart"
	case errors.Is(err, model.ErrUnitMissing):
		return fiber.StatusInternalServerError, "unit_missing"
	}
	return fiber.StatusInternalServerError, "internal"
}

func writeError(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)
	resp := ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		Retryable: status == fiber.StatusServiceUnavailable,
	}

	var lineErr *model.LineError
	if errors.As(err, &lineErr) {
		resp.Line = lineErr
	}
	var fieldErr *dialog.FieldError
	if errors.As(err, &fieldErr) {
		resp.Field = string(fieldErr.Field)
		resp.Prompt = fieldErr.Prompt
	}
	return c.Status(status).JSON(resp)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg, Code: "bad_request"})
}
