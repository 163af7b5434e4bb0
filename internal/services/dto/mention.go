package dto

// CommentMentionRequest - комментарий к задаче из внешнего модуля задач
type CommentMentionRequest struct {
	CommentID string `json:"commentId" validate:"required,uuid"`
	TaskTitle string `json:"taskTitle" validate:"max=255"`
	Content   string `json:"content" validate:"required,max=10000"`
	Link      string `json:"link,omitempty" validate:"omitempty,url"`
}

type CommentMentionResponse struct {
	MentionedUserIDs []string `json:"mentionedUserIds"`
}
