package routes

import (
	"agency_backend/internal/handlers"
	"agency_backend/internal/logger"
	"agency_backend/internal/metrics"
	"agency_backend/ws"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все HTTP и WebSocket маршруты.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *handlers.AppHandlers,
	wsHandler *ws.WebSocketHandler,
	authMiddleware gin.HandlerFunc,
) {
	// Регистрация HTTP API v1
	api := ginRouter.Group("/api/v1")
	{
		appHandlers.ChatHandler.RegisterRoutes(api, authMiddleware)
		appHandlers.MentionHandler.RegisterRoutes(api, authMiddleware)
		appHandlers.TelegramWebhookHandler.RegisterRoutes(api)
	}

	ginRouter.GET("/healthz", appHandlers.HealthHandler.Healthz)
	ginRouter.GET("/metrics", gin.WrapH(metrics.Handler()))

	// аутентификация выполняется в ServeWS до апгрейда
	ginRouter.GET("/ws", wsHandler.ServeWS)
	logger.Info("WebSocket route /ws registered")
}

// RegisterFiles раздает локальное хранилище вложений
func RegisterFiles(ginRouter *gin.Engine, urlPrefix, basePath string) {
	ginRouter.Static(urlPrefix, basePath)
}
