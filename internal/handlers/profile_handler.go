package handlers

import (
	"context"

	"github.com/curasync-homepage/curasync-web-app/internal/middleware"
	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/gofiber/fiber/v2"
)

type profileApplicationService interface {
	GetProfile(ctx context.Context, actor models.Identity) (*models.Profile, error)
	UpdateDisplayName(ctx context.Context, actor models.Identity, displayName string) (*models.Profile, error)
}

type ProfileHandler struct {
	service profileApplicationService
}

func NewProfileHandler(service profileApplicationService) *ProfileHandler {
	return &ProfileHandler{service: service}
}

type updateProfileRequest struct {
	DisplayName *string `json:"displayName"`
}

func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return invalidToken(c)
	}

	profile, err := h.service.GetProfile(c.Context(), identity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"profile": profile})
}

func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return invalidToken(c)
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if validationErr := validateProfileUpdateRequest(req); validationErr != "" {
		return badRequest(c, validationErr)
	}

	profile, err := h.service.UpdateDisplayName(c.Context(), identity, *req.DisplayName)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"profile": profile})
}
