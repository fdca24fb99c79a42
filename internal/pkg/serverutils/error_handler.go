package serverutils

import (
	"errors"

	"ai-chat-be/internal/service"
	"ai-chat-be/pkg/reconcile"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware converts service errors into the API envelope.
// Anything unmapped becomes a 500 without leaking internals.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		status := fiber.StatusInternalServerError
		message := "Internal server error"

		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			message = fiberErr.Message
		case errors.Is(err, service.ErrConversationNotFound),
			errors.Is(err, service.ErrTurnNotFound):
			status = fiber.StatusNotFound
			message = err.Error()
		case errors.Is(err, reconcile.ErrInvalidEditTarget),
			errors.Is(err, reconcile.ErrEmptyAppend):
			status = fiber.StatusBadRequest
			message = err.Error()
		case errors.Is(err, reconcile.ErrStreamInFlight):
			status = fiber.StatusConflict
			message = err.Error()
		case errors.Is(err, service.ErrStreamUnavailable):
			status = fiber.StatusBadGateway
			message = err.Error()
		}

		return ctx.Status(status).JSON(ErrorResponse(status, message))
	}
}
