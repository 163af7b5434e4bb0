package handlers

import (
	"net/http"

	"agency_backend/internal/services"
	"agency_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
)

// MentionHandler принимает комментарии к задачам от модуля задач
type MentionHandler struct {
	*BaseHandler
	mentionService services.MentionService
}

func NewMentionHandler(base *BaseHandler, mentionService services.MentionService) *MentionHandler {
	return &MentionHandler{
		BaseHandler:    base,
		mentionService: mentionService,
	}
}

func (h *MentionHandler) RegisterRoutes(r *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	mentions := r.Group("/mentions")
	mentions.Use(authMiddleware)
	{
		mentions.POST("/comments", h.ProcessComment)
	}
}

func (h *MentionHandler) ProcessComment(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.CommentMentionRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	resp, err := h.mentionService.ProcessComment(c.Request.Context(), h.GetDB(c), userID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
