package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/curasync-homepage/curasync-web-app/internal/middleware"
	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/curasync-homepage/curasync-web-app/internal/services"
	chatws "github.com/curasync-homepage/curasync-web-app/internal/websocket"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type chatApplicationService interface {
	ResolveConversation(ctx context.Context, actor models.Identity, conversationKey string, counterpartID string) (string, string, error)
	FetchHistory(ctx context.Context, actor models.Identity, counterpartID string) (string, []models.Message, error)
	Send(ctx context.Context, actor models.Identity, input services.SendInput) (*models.Message, error)
}

type ChatHandler struct {
	service   chatApplicationService
	hub       *chatws.Hub
	jwtSecret string
	limiters  *middleware.LimiterPool
	log       *zap.Logger
}

type sendMessageRequest struct {
	ConversationKey string          `json:"conversationKey"`
	CounterpartID   string          `json:"counterpartId"`
	Kind            models.Kind     `json:"kind"`
	Data            json.RawMessage `json:"data"`
	SentDate        string          `json:"sentDate"`
	SentTime        string          `json:"sentTime"`
}

func NewChatHandler(
	service chatApplicationService,
	hub *chatws.Hub,
	jwtSecret string,
	limiters *middleware.LimiterPool,
	log *zap.Logger,
) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{
		service:   service,
		hub:       hub,
		jwtSecret: jwtSecret,
		limiters:  limiters,
		log:       log,
	}
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return invalidToken(c)
	}

	conversationKey, messages, err := h.service.FetchHistory(c.Context(), identity, c.Params("counterpartId"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"conversationKey": conversationKey,
		"messages":        messages,
	})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return invalidToken(c)
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if len(req.Data) == 0 {
		return badRequest(c, "data is required")
	}

	stored, err := h.service.Send(c.Context(), identity, services.SendInput{
		ConversationKey: req.ConversationKey,
		CounterpartID:   req.CounterpartID,
		Kind:            req.Kind,
		Data:            req.Data,
		SentDate:        req.SentDate,
		SentTime:        req.SentTime,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"ack":     models.Ack{ID: stored.ID, ConversationKey: stored.ConversationKey},
		"message": stored,
	})
}

// WebSocketAuth validates the credential and the counterpart scope before the
// upgrade, so a rejected connect never reaches the hub.
func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	identity, err := h.parseWSIdentity(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
			"code":  middleware.CodeUnauthenticated,
		})
	}

	counterpartID := strings.TrimSpace(c.Query("counterpartId"))
	conversationKey, counterpartID, err := h.service.ResolveConversation(c.Context(), identity, "", counterpartID)
	if err != nil {
		return respondError(c, err)
	}

	middleware.SetIdentity(c, identity)
	c.Locals("conversation_key", conversationKey)
	c.Locals("counterpart_id", counterpartID)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	role, _ := conn.Locals("role").(string)
	conversationKey, _ := conn.Locals("conversation_key").(string)
	counterpartID, _ := conn.Locals("counterpart_id").(string)
	identity := models.Identity{UserID: userID, Role: models.Role(role)}

	opts := []chatws.ClientOption{chatws.WithLogger(h.log)}
	if h.limiters != nil {
		opts = append(opts, chatws.WithLimiter(h.limiters.Get(userID)))
	}
	client := chatws.NewClient(h.hub, conn, identity, conversationKey, counterpartID, opts...)

	if err := client.Open(); err != nil {
		h.log.Warn("channel open failed", zap.String("user_id", userID), zap.Error(err))
		_ = conn.Close()
		return
	}
	h.log.Info("channel opened", zap.String("user_id", userID), zap.String("conversation_key", conversationKey))

	go client.WritePump()
	client.ReadPump(context.Background(), h.service)
	h.log.Info("channel closed", zap.String("user_id", userID), zap.String("conversation_key", conversationKey))
}

func (h *ChatHandler) parseWSIdentity(c *fiber.Ctx) (models.Identity, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return models.Identity{}, errors.New("missing token")
	}

	return middleware.IdentityFromToken(tokenString, h.jwtSecret)
}
