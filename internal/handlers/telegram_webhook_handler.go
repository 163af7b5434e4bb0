package handlers

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strconv"

	"agency_backend/internal/logger"
	"agency_backend/internal/notify"
	"agency_backend/internal/services"
	"agency_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/valyala/fastjson"
)

const (
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxTelegramUpdate    = 1 << 20
)

// TelegramWebhookHandler принимает ответы пользователей на сообщения бота
type TelegramWebhookHandler struct {
	*BaseHandler
	replyBridge services.ReplyBridgeService
	secret      string
	parsers     fastjson.ParserPool
}

func NewTelegramWebhookHandler(base *BaseHandler, replyBridge services.ReplyBridgeService, secret string) *TelegramWebhookHandler {
	return &TelegramWebhookHandler{
		BaseHandler: base,
		replyBridge: replyBridge,
		secret:      secret,
	}
}

func (h *TelegramWebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	integrations := r.Group("/integrations")
	{
		integrations.POST("/telegram/webhook", h.HandleUpdate)
	}
}

// HandleUpdate отвечает 200 на все корректные обновления, иначе Telegram будет повторять доставку
func (h *TelegramWebhookHandler) HandleUpdate(c *gin.Context) {
	ctx := c.Request.Context()

	if h.secret == "" || subtle.ConstantTimeCompare([]byte(c.GetHeader(telegramSecretHeader)), []byte(h.secret)) != 1 {
		logger.CtxWarn(ctx, "Telegram webhook rejected: bad secret", "ip", c.ClientIP())
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("Invalid webhook secret"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTelegramUpdate))
	if err != nil {
		apperrors.HandleError(c, apperrors.NewBadRequestError("Failed to read body"))
		return
	}

	p := h.parsers.Get()
	defer h.parsers.Put(p)

	update, err := p.ParseBytes(body)
	if err != nil {
		apperrors.HandleError(c, apperrors.NewBadRequestError("Malformed JSON"))
		return
	}

	replyTo := update.GetInt64("message", "reply_to_message", "message_id")
	chatID := update.GetInt64("message", "chat", "id")
	text := string(update.GetStringBytes("message", "text"))
	if replyTo == 0 || chatID == 0 {
		c.JSON(http.StatusOK, gin.H{"ok": true, "posted": false})
		return
	}

	ref := notify.TelegramRef(strconv.FormatInt(chatID, 10), replyTo)
	message, err := h.replyBridge.ResolveInboundReply(ctx, h.GetDB(c), ref, text)
	if err != nil {
		// ответ не публикуется, но обновление считаем обработанным
		logger.CtxWarn(ctx, "Telegram reply dropped", "ref", ref, "error", err.Error())
		c.JSON(http.StatusOK, gin.H{"ok": true, "posted": false})
		return
	}

	logger.CtxInfo(ctx, "Telegram reply posted", "ref", ref, "message_id", message.ID, "chat_id", message.ChatID)
	c.JSON(http.StatusOK, gin.H{"ok": true, "posted": true})
}
