package handlers

import (
	"context"
	"strings"

	"github.com/curasync-homepage/curasync-web-app/internal/middleware"
	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/gofiber/fiber/v2"
)

type requestApplicationService interface {
	CreateRequest(ctx context.Context, actor models.Identity, targetID string, targetRole models.Role) (*models.ConnectionRequest, error)
	ListPending(ctx context.Context, viewer models.Identity) (models.RequestPartitions, error)
	ListAccepted(ctx context.Context, viewer models.Identity) (models.RequestPartitions, error)
	Accept(ctx context.Context, requestID string, viewer models.Identity) (*models.RequestView, error)
	Contacts(ctx context.Context, viewer models.Identity, query string, page int, limit int) ([]models.Contact, int, error)
}

type RequestHandler struct {
	service requestApplicationService
}

type createRequestBody struct {
	TargetID   string `json:"targetId"`
	TargetRole string `json:"targetRole"`
}

func NewRequestHandler(service requestApplicationService) *RequestHandler {
	return &RequestHandler{service: service}
}

func (h *RequestHandler) CreateRequest(c *fiber.Ctx) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return invalidToken(c)
	}

	var req createRequestBody
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	targetRole, ok := models.ParseRole(strings.TrimSpace(req.TargetRole))
	if !ok {
		return badRequest(c, "Unknown target role")
	}

	request, err := h.service.CreateRequest(c.Context(), identity, req.TargetID, targetRole)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"request": request})
}

func (h *RequestHandler) ListPending(c *fiber.Ctx) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return invalidToken(c)
	}

	partitions, err := h.service.ListPending(c.Context(), identity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(partitions)
}

func (h *RequestHandler) ListAccepted(c *fiber.Ctx) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return invalidToken(c)
	}

	partitions, err := h.service.ListAccepted(c.Context(), identity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(partitions)
}

func (h *RequestHandler) Accept(c *fiber.Ctx) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return invalidToken(c)
	}

	view, err := h.service.Accept(c.Context(), c.Params("id"), identity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"request": view})
}

func (h *RequestHandler) ListContacts(c *fiber.Ctx) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return invalidToken(c)
	}

	page, limit := parsePage(c.Query("page"), c.Query("limit"))
	contacts, total, err := h.service.Contacts(c.Context(), identity, c.Query("q"), page, limit)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"contacts":   contacts,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}
