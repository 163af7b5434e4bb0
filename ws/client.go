package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"agency_backend/internal/logger"
	"agency_backend/internal/metrics"
	"agency_backend/internal/services"
	"agency_backend/internal/validator"
	"agency_backend/pkg/apperrors"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Client - одно websocket-соединение аутентифицированного пользователя
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	// rooms защищены мьютексом хаба
	rooms map[string]struct{}

	hub      *Hub
	chats    services.ChatService
	db       *gorm.DB
	validate *validator.Validator
	limiter  *rate.Limiter
	opts     Options
}

// ID - идентификатор соединения
func (c *Client) ID() string { return c.id }

// UserID - владелец соединения
func (c *Client) UserID() string { return c.userID }

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.CtxWarn(c.ctx, "WebSocket read error", "error", err.Error())
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.sendError("", apperrors.NewBadRequestError("Malformed event envelope"))
			continue
		}

		if !c.limiter.Allow() {
			metrics.RateLimited()
			c.sendError(env.Event, apperrors.New(apperrors.CodeLimitExceeded, "gateway", "Too many events, slow down", http.StatusTooManyRequests))
			continue
		}

		c.handle(env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				// хаб закрыл канал
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.CtxDebug(c.ctx, "WebSocket write error", "error", err.Error())
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle выполняет событие синхронно, порядок событий одного соединения сохраняется
func (c *Client) handle(env Envelope) {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.EventTimeout)
	defer cancel()
	db := c.db.WithContext(ctx)

	var err error
	switch env.Event {
	case EventChatJoin:
		var p ChatRef
		if err = c.decode(env, &p); err == nil {
			err = c.join(ctx, db, p.ChatID)
		}

	case EventChatLeave:
		var p ChatRef
		if err = c.decode(env, &p); err == nil {
			c.hub.Leave(c, p.ChatID)
		}

	case EventMessageSend:
		var p MessageSendPayload
		if err = c.decode(env, &p); err == nil {
			_, err = c.chats.SendMessage(ctx, db, c.userID, &p)
		}

	case EventMessageRead:
		var p MessageReadPayload
		if err = c.decode(env, &p); err == nil {
			_, err = c.chats.MarkRead(ctx, db, c.userID, p.ChatID, p.MessageIDs)
		}

	case EventTypingStart, EventTypingStop:
		var p ChatRef
		if err = c.decode(env, &p); err == nil {
			err = c.chats.SetTyping(ctx, db, c.userID, p.ChatID, env.Event == EventTypingStart)
		}

	case EventReactionToggle:
		var p ReactionTogglePayload
		if err = c.decode(env, &p); err == nil {
			_, err = c.chats.ToggleReaction(ctx, db, c.userID, p.ChatID, p.MessageID, p.Emoji)
		}

	default:
		err = apperrors.InvalidInput("gateway", "Unknown event "+env.Event)
	}

	if err != nil {
		metrics.GatewayEvent(env.Event, "error")
		c.sendError(env.Event, err)
		return
	}
	metrics.GatewayEvent(env.Event, "ok")
}

// join - не участник молча игнорируется, чтобы не раскрывать существование чата
func (c *Client) join(ctx context.Context, db *gorm.DB, chatID string) error {
	ok, err := c.chats.IsParticipant(ctx, db, chatID, c.userID)
	if err != nil {
		return err
	}
	if ok {
		c.hub.Join(c, chatID)
	}
	return nil
}

func (c *Client) decode(env Envelope, dst interface{}) error {
	if len(env.Data) == 0 {
		return apperrors.NewBadRequestError("Event data is required")
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return apperrors.NewBadRequestError("Invalid event data")
	}
	if err := c.validate.Validate(dst); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			return apperrors.ValidationError(verr.Errors)
		}
		return apperrors.ValidationError(err.Error())
	}
	return nil
}

func (c *Client) sendError(event string, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.InternalError(err)
	}
	message := appErr.Message
	if appErr.HTTPCode >= 500 {
		logger.CtxWithError(c.ctx, "WebSocket event failed", err, "event", event)
		message = "Internal server error"
	}
	c.hub.sendTo(c, EventError, ErrorPayload{Message: message, Code: string(appErr.Code), Event: event})
}
