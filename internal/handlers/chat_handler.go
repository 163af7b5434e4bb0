package handlers

import (
	"net/http"

	"agency_backend/internal/services"
	"agency_backend/internal/services/dto"
	"agency_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// ChatHandler - REST-дубль операций шлюза для клиентов без websocket
type ChatHandler struct {
	*BaseHandler
	chatService services.ChatService
}

func NewChatHandler(base *BaseHandler, chatService services.ChatService) *ChatHandler {
	return &ChatHandler{
		BaseHandler: base,
		chatService: chatService,
	}
}

func (h *ChatHandler) RegisterRoutes(r *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	chats := r.Group("/chats")
	chats.Use(authMiddleware)
	{
		chats.POST("", h.CreateChat)
		chats.GET("", h.ListChats)
		chats.GET("/unread", h.GetUnreadSummary)
		chats.GET("/:chatId", h.GetChat)

		chats.GET("/:chatId/messages", h.ListMessages)
		chats.POST("/:chatId/messages", h.SendMessage)
		chats.POST("/:chatId/attachments", h.UploadAttachment)
		chats.POST("/:chatId/read", h.MarkRead)
		chats.POST("/:chatId/typing", h.SetTyping)
		chats.POST("/:chatId/messages/:messageId/reactions", h.ToggleReaction)

		chats.POST("/:chatId/participants", h.AddParticipant)
		chats.DELETE("/:chatId/participants/:userId", h.RemoveParticipant)
	}
}

// --- Chats ---

func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.CreateChatRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	chat, err := h.chatService.CreateChat(c.Request.Context(), h.GetDB(c), userID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, chat)
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	chats, err := h.chatService.ListChats(c.Request.Context(), h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *ChatHandler) GetUnreadSummary(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	summary, err := h.chatService.GetUnreadSummary(c.Request.Context(), h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	chat, err := h.chatService.GetChat(c.Request.Context(), h.GetDB(c), c.Param("chatId"), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, chat)
}

// --- Messages ---

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var criteria dto.MessageCriteria
	if !h.BindAndValidate_Query(c, &criteria) {
		return
	}

	page, err := h.chatService.ListMessages(c.Request.Context(), h.GetDB(c), c.Param("chatId"), userID, criteria)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	req.ChatID = c.Param("chatId")
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}
	// чат берется только из пути
	req.ChatID = c.Param("chatId")

	message, err := h.chatService.SendMessage(c.Request.Context(), h.GetDB(c), userID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *ChatHandler) UploadAttachment(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		apperrors.HandleError(c, apperrors.NewBadRequestError("File is required"))
		return
	}

	uploaded, err := h.chatService.UploadAttachment(c.Request.Context(), h.GetDB(c), userID, c.Param("chatId"), file)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, uploaded)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.MarkReadRequest
	if c.Request.ContentLength != 0 && !h.BindAndValidate_JSON(c, &req) {
		return
	}

	event, err := h.chatService.MarkRead(c.Request.Context(), h.GetDB(c), userID, c.Param("chatId"), req.MessageIDs)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

func (h *ChatHandler) SetTyping(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req struct {
		Typing bool `json:"typing"`
	}
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	if err := h.chatService.SetTyping(c.Request.Context(), h.GetDB(c), userID, c.Param("chatId"), req.Typing); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) ToggleReaction(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.ToggleReactionRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	event, err := h.chatService.ToggleReaction(c.Request.Context(), h.GetDB(c), userID, c.Param("chatId"), c.Param("messageId"), req.Emoji)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// --- Participants ---

func (h *ChatHandler) AddParticipant(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.AddParticipantRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	participant, err := h.chatService.AddParticipant(c.Request.Context(), h.GetDB(c), userID, c.Param("chatId"), req.UserID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, participant)
}

func (h *ChatHandler) RemoveParticipant(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	if err := h.chatService.RemoveParticipant(c.Request.Context(), h.GetDB(c), userID, c.Param("chatId"), c.Param("userId")); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
