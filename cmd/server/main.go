package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/curasync-homepage/curasync-web-app/internal/config"
	"github.com/curasync-homepage/curasync-web-app/internal/database"
	"github.com/curasync-homepage/curasync-web-app/internal/logger"
	"github.com/curasync-homepage/curasync-web-app/internal/repository"
	"github.com/curasync-homepage/curasync-web-app/internal/repository/sqlitestore"
	"github.com/curasync-homepage/curasync-web-app/internal/routes"
	"github.com/curasync-homepage/curasync-web-app/internal/services"
	chatws "github.com/curasync-homepage/curasync-web-app/internal/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type stores struct {
	ledger    services.RequestLedger
	messages  services.MessageStore
	directory services.NameDirectory
	profiles  services.ProfileStore
	health    interface {
		Ping(ctx context.Context) error
	}
	close func()
}

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	location, err := cfg.Location()
	if err != nil {
		zlog.Fatal("invalid civil time zone", zap.Error(err))
	}

	// 2. Open the store
	st, err := openStores(ctx, cfg)
	if err != nil {
		zlog.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close()
	zlog.Info("store ready", zap.String("driver", cfg.StoreDriver))

	// 3. Realtime hub, optional relay, services
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	hub := chatws.NewHub(chatws.NewMetrics(registry), zlog.Named("hub"))
	go hub.Run(ctx)

	var publisher services.Publisher = hub
	if cfg.RelayEnabled() {
		redisClient, err := database.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			zlog.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()

		relay := chatws.NewRedisRelay(redisClient, cfg.RelayChannel, hub, zlog.Named("relay"))
		go func() {
			if err := relay.Listen(ctx); err != nil {
				zlog.Error("relay stopped", zap.Error(err))
			}
		}()
		publisher = relay
		zlog.Info("cross-instance relay enabled", zap.String("channel", cfg.RelayChannel))
	}

	requestService := services.NewRequestService(st.ledger, st.directory, location, zlog.Named("requests"))
	chatService := services.NewChatService(st.messages, requestService, publisher, zlog.Named("chat"))
	profileService := services.NewProfileService(st.profiles, zlog.Named("profiles"))

	// 4. Setup Fiber
	app := fiber.New(fiber.Config{DisableStartupMessage: cfg.AppEnv == "production"})
	app.Use(cors.New())
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	var gatherer prometheus.Gatherer
	if cfg.EnableMetrics {
		gatherer = registry
	}
	if err := routes.RegisterRoutes(app, cfg, routes.Dependencies{
		Requests: requestService,
		Chat:     chatService,
		Profiles: profileService,
		Hub:      hub,
		Store:    st.health,
		Gatherer: gatherer,
		Log:      zlog.Named("http"),
	}); err != nil {
		zlog.Fatal("failed to register routes", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			zlog.Warn("shutdown", zap.Error(err))
		}
	}()

	// 5. Start Server
	zlog.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zlog.Fatal("server failed", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &stores{
			ledger:    store,
			messages:  store,
			directory: store,
			profiles:  store,
			health:    store,
			close:     func() { _ = store.Close() },
		}, nil
	default:
		pool, err := database.ConnectPostgres(ctx, cfg.DBUrl)
		if err != nil {
			return nil, err
		}
		profiles := repository.NewProfileRepository(pool)
		return &stores{
			ledger:    repository.NewRequestRepository(pool),
			messages:  repository.NewPostgresMessageStore(pool),
			directory: profiles,
			profiles:  profiles,
			health:    pool,
			close:     pool.Close,
		}, nil
	}
}
