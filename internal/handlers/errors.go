package handlers

import (
	"errors"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/curasync-homepage/curasync-web-app/internal/services"
	"github.com/gofiber/fiber/v2"
)

func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Failed to process request"

	switch {
	case errors.Is(err, services.ErrUnauthorized):
		status, message = fiber.StatusForbidden, "No accepted connection with this party"
	case errors.Is(err, services.ErrForbidden):
		status, message = fiber.StatusForbidden, "Forbidden"
	case errors.Is(err, services.ErrNotFound):
		status, message = fiber.StatusNotFound, "Not found"
	case errors.Is(err, services.ErrDuplicatePending):
		status, message = fiber.StatusConflict, "A pending request already exists"
	case errors.Is(err, services.ErrAlreadyAccepted):
		status, message = fiber.StatusConflict, "Request already accepted"
	case errors.Is(err, services.ErrMalformed):
		status, message = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrInvalidInput):
		status, message = fiber.StatusBadRequest, "Invalid request"
	case errors.Is(err, services.ErrUnavailable):
		status, message = fiber.StatusServiceUnavailable, "Service temporarily unavailable"
	}

	code := models.ErrorCode(err)
	if code == "" {
		code = "internal"
	}
	body := fiber.Map{"error": message, "code": code}
	if models.Retryable(err) {
		body["retryable"] = true
	}
	return c.Status(status).JSON(body)
}

func invalidToken(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token", "code": "unauthenticated"})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": message, "code": models.CodeInvalidInput})
}
