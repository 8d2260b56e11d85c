package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrValidation):
		return fiber.StatusBadRequest, "VALIDATION"
	case errors.Is(err, common.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return fiber.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, common.ErrInsufficientStock):
		return fiber.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, common.ErrRemoteUnavailable):
		return fiber.StatusServiceUnavailable, "REMOTE_UNAVAILABLE"
	default:
		return fiber.StatusInternalServerError, "INTERNAL"
	}
}

func errorHandler(log logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, code := statusOf(err)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status, code = fe.Code, "HTTP"
		}

		if status >= fiber.StatusInternalServerError {
			log.Error(c.UserContext(), "request failed", "method", c.Method(), "path", c.Path(), "error", err)
		}
		return c.Status(status).JSON(ErrorResponse{Code: code, Message: err.Error()})
	}
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}
