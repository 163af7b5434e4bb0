package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agency_backend/database"
	"agency_backend/internal/auth"
	"agency_backend/internal/config"
	"agency_backend/internal/handlers"
	"agency_backend/internal/logger"
	"agency_backend/internal/middleware"
	"agency_backend/internal/presence"
	"agency_backend/internal/repositories"
	"agency_backend/internal/routes"
	"agency_backend/internal/services"
	"agency_backend/internal/storage"
	"agency_backend/internal/validator"
	"agency_backend/internal/workers"
	"agency_backend/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// App - собранное приложение: HTTP-сервер, хаб и фоновые процессы
type App struct {
	cfg      *config.Config
	db       *gorm.DB
	server   *http.Server
	hub      *ws.Hub
	services *services.ServiceContainer
	worker   *workers.ReplyMappingWorker
}

func Run() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	logger.Init(cfg.Server.Env, cfg.Server.LogLevel)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := New(cfg)
	if err != nil {
		logger.Fatal("Failed to build application", "error", err)
	}
	if err := application.Start(ctx); err != nil {
		logger.Fatal("Server startup error", "error", err)
	}
}

// New подключает базу и собирает все зависимости
func New(cfg *config.Config) (*App, error) {
	logger.Info("Connecting to database...")
	gormDB, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database unavailable: %w", err)
	}
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(gormDB); err != nil {
			return nil, err
		}
	}

	blobs, err := storage.New(storage.Config{
		Type:      cfg.Storage.Type,
		BasePath:  cfg.Storage.BasePath,
		BaseURL:   cfg.Storage.BaseURL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Endpoint:  cfg.Storage.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Info("Storage initialized", "type", cfg.Storage.Type)

	return build(cfg, gormDB, blobs), nil
}

func build(cfg *config.Config, gormDB *gorm.DB, blobs storage.BlobStore) *App {
	// 1. Сервисы
	registry := presence.NewRegistry()
	hub := ws.NewHub(registry)
	serviceContainer := services.NewServiceContainer(services.Dependencies{
		Config:      cfg,
		Broadcaster: hub,
		Presence:    registry,
		Blobs:       blobs,
		Senders:     BuildSenders(cfg),
	})

	// 2. Хэндлеры
	customValidator := validator.New()
	appHandlers := handlers.NewAppHandlers(customValidator, serviceContainer, cfg.Telegram.WebhookSecret)
	provider := auth.NewJWTProvider(cfg.JWT.Secret, cfg.JWT.Issuer, repositories.NewUserRepository())

	// 3. WebSocket
	wsHandler := ws.NewWebSocketHandler(hub, serviceContainer.ChatService, provider, gormDB, customValidator, ws.OptionsFromConfig(cfg))

	// 4. Gin
	ginRouter := initializeGinRouter(cfg, gormDB)
	routes.RegisterRoutes(ginRouter, appHandlers, wsHandler, middleware.AuthMiddleware(provider))
	if cfg.Storage.Type == "" || cfg.Storage.Type == "local" {
		routes.RegisterFiles(ginRouter, cfg.Storage.BaseURL, cfg.Storage.BasePath)
	}

	return &App{
		cfg: cfg,
		db:  gormDB,
		server: &http.Server{
			Addr:              cfg.Address(),
			Handler:           ginRouter,
			ReadHeaderTimeout: 10 * time.Second,
		},
		hub:      hub,
		services: serviceContainer,
		worker:   workers.NewReplyMappingWorker(gormDB, serviceContainer.ReplyBridgeService, cfg.ReplyBridge.SweepSchedule),
	}
}

func initializeGinRouter(cfg *config.Config, db *gorm.DB) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.DBMiddleware(db))
	return router
}

// Start обслуживает запросы до отмены ctx, затем останавливается в обратном порядке
func (a *App) Start(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go a.hub.Run(hubCtx)

	if err := a.worker.Start(context.Background()); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			a.worker.Stop()
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	return a.shutdown()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.worker.Stop()

	// фоновые отправки дописывают статусы в базу, поэтому база закрывается последней
	if err := a.services.ChatService.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("chat background work: %w", err))
	}
	if err := a.services.NotificationService.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("notifications: %w", err))
	}

	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Info("Server stopped")
	return nil
}
