package routes

import (
	"context"

	"github.com/curasync-homepage/curasync-web-app/internal/config"
	"github.com/curasync-homepage/curasync-web-app/internal/handlers"
	"github.com/curasync-homepage/curasync-web-app/internal/middleware"
	"github.com/curasync-homepage/curasync-web-app/internal/services"
	chatws "github.com/curasync-homepage/curasync-web-app/internal/websocket"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the wired components the HTTP surface is built from.
type Dependencies struct {
	Requests *services.RequestService
	Chat     *services.ChatService
	Profiles *services.ProfileService
	Hub      *chatws.Hub
	Store    pinger
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, deps Dependencies) error {
	limiters := middleware.NewLimiterPool(cfg.SendRatePerSecond, cfg.SendBurst)

	healthHandler := handlers.NewHealthHandler(deps.Store)
	requestHandler := handlers.NewRequestHandler(deps.Requests)
	profileHandler := handlers.NewProfileHandler(deps.Profiles)
	chatHandler := handlers.NewChatHandler(deps.Chat, deps.Hub, cfg.JWTSecret, limiters, deps.Log)

	app.Get("/health", healthHandler.Health)
	if cfg.EnableMetrics && deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	if err := registerDocsRoutes(app, cfg); err != nil {
		return err
	}

	api := app.Group("/api")

	// The channel authenticates from the query string, so it sits outside the
	// header-based auth group.
	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	requests := authProtected.Group("/requests")
	requests.Get("/pending", requestHandler.ListPending)
	requests.Get("/accepted", requestHandler.ListAccepted)
	requests.Post("", requestHandler.CreateRequest)
	requests.Post("/:id/accept", requestHandler.Accept)

	authProtected.Get("/contacts", requestHandler.ListContacts)
	authProtected.Get("/profile", profileHandler.GetProfile)
	authProtected.Put("/profile", profileHandler.UpdateProfile)

	authProtected.Get("/conversations/:counterpartId/messages", chatHandler.GetMessages)
	authProtected.Post("/messages", middleware.RateLimit(limiters), chatHandler.SendMessage)

	return nil
}
