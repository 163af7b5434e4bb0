package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"agency_backend/internal/auth"
	"agency_backend/internal/config"
	"agency_backend/internal/logger"
	"agency_backend/internal/middleware"
	"agency_backend/internal/services"
	"agency_backend/internal/validator"
	"agency_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Options - параметры соединений
type Options struct {
	SendBuffer     int
	EventsPerSec   float64
	EventsBurst    int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	EventTimeout   time.Duration
	AllowedOrigins []string
}

// OptionsFromConfig переносит секцию websocket и список CORS origins
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SendBuffer:     cfg.WebSocket.SendBuffer,
		EventsPerSec:   cfg.WebSocket.EventsPerSec,
		EventsBurst:    cfg.WebSocket.EventsBurst,
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		EventTimeout:   10 * time.Second,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
}

type WebSocketHandler struct {
	hub      *Hub
	chats    services.ChatService
	auth     auth.Provider
	db       *gorm.DB
	validate *validator.Validator
	opts     Options
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(
	hub *Hub,
	chats services.ChatService,
	provider auth.Provider,
	db *gorm.DB,
	validate *validator.Validator,
	opts Options,
) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:      hub,
		chats:    chats,
		auth:     provider,
		db:       db,
		validate: validate,
		opts:     opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// ServeWS - GET /ws. Без валидного токена отвечает 401 до апгрейда, состояние не создается.
func (h *WebSocketHandler) ServeWS(c *gin.Context) {
	userID, err := h.auth.Authenticate(c.Request.Context(), h.db, middleware.BearerToken(c))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		logger.CtxWarn(c.Request.Context(), "WebSocket upgrade error", "error", err.Error())
		return
	}

	connID := uuid.NewString()
	// Контекст запроса отменяется после возврата из хендлера, соединение живет дольше
	ctx := logger.WithConnID(logger.WithUserID(context.Background(), userID), connID)
	ctx, cancel := context.WithCancel(ctx)

	client := &Client{
		id:       connID,
		userID:   userID,
		conn:     conn,
		send:     make(chan []byte, h.opts.SendBuffer),
		ctx:      ctx,
		cancel:   cancel,
		rooms:    make(map[string]struct{}),
		hub:      h.hub,
		chats:    h.chats,
		db:       h.db,
		validate: h.validate,
		limiter:  rate.NewLimiter(rate.Limit(h.opts.EventsPerSec), h.opts.EventsBurst),
		opts:     h.opts,
	}

	h.hub.register(client)
	logger.CtxInfo(ctx, "WebSocket client connected")

	go client.writePump()
	go client.readPump()
}
