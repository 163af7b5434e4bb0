package dto

import "time"

// Request structures

type CreateChatRequest struct {
	IsGroup        bool     `json:"isGroup"`
	Name           *string  `json:"name,omitempty" validate:"omitempty,max=100"`
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,max=200,dive,required"`
}

type AttachmentInput struct {
	StorageKey string `json:"storageKey" validate:"required,storage-key"`
	FileName   string `json:"fileName" validate:"max=255"`
	MimeType   string `json:"mimeType" validate:"max=127"`
	Size       int64  `json:"size" validate:"min=0"`
}

type SendMessageRequest struct {
	ChatID      string            `json:"chatId" validate:"required"`
	Content     string            `json:"content"`
	TempID      string            `json:"tempId,omitempty" validate:"max=64"`
	Attachments []AttachmentInput `json:"attachments,omitempty" validate:"omitempty,max=10,dive"`
}

type MarkReadRequest struct {
	MessageIDs []string `json:"messageIds" validate:"omitempty,max=500"`
}

type ToggleReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,chat-emoji"`
}

type AddParticipantRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// MessageCriteria - курсорная пагинация истории
type MessageCriteria struct {
	Before string `form:"before" json:"before"`
	Limit  int    `form:"limit" json:"limit" validate:"omitempty,min=1,max=100"`
}

// Response structures

type ChatResponse struct {
	ID           string                 `json:"id"`
	IsGroup      bool                   `json:"isGroup"`
	Name         *string                `json:"name,omitempty"`
	CreatorID    string                 `json:"creatorId"`
	Participants []*ParticipantResponse `json:"participants"`
	UnreadCount  int64                  `json:"unreadCount"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

type ParticipantResponse struct {
	UserID     string    `json:"userId"`
	Name       string    `json:"name"`
	IsOnline   bool      `json:"isOnline"`
	JoinedAt   time.Time `json:"joinedAt"`
	LastReadAt time.Time `json:"lastReadAt"`
}

type AttachmentResponse struct {
	ID         string `json:"id"`
	Position   int    `json:"position"`
	StorageKey string `json:"storageKey"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	URL        string `json:"url"`
}

type MessageResponse struct {
	ID          string                `json:"id"`
	ChatID      string                `json:"chatId"`
	SenderID    string                `json:"senderId"`
	SenderName  string                `json:"senderName,omitempty"`
	Content     string                `json:"content"`
	Attachments []*AttachmentResponse `json:"attachments"`
	CreatedAt   time.Time             `json:"createdAt"`
}

// MessagePage - страница истории в хронологическом порядке.
// NextCursor - id самого старого сообщения страницы, если есть более старые.
type MessagePage struct {
	Messages   []*MessageResponse `json:"messages"`
	NextCursor *string            `json:"nextCursor"`
	HasMore    bool               `json:"hasMore"`
}

type UnreadSummary struct {
	Total int64            `json:"total"`
	Chats map[string]int64 `json:"chats"`
}

type UploadedAttachment struct {
	StorageKey string `json:"storageKey"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
}

type ReactionGroup struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIDs []string `json:"userIds"`
}

// Event payloads

type MessageNewEvent struct {
	Message *MessageResponse `json:"message"`
	TempID  string           `json:"tempId,omitempty"`
}

type MessageReadEvent struct {
	ChatID     string    `json:"chatId"`
	UserID     string    `json:"userId"`
	MessageIDs []string  `json:"messageIds"`
	ReadAt     time.Time `json:"readAt"`
}

type ReactionUpdatedEvent struct {
	ChatID    string          `json:"chatId"`
	MessageID string          `json:"messageId"`
	Reactions []ReactionGroup `json:"reactions"`
	Action    string          `json:"action"`
	UserID    string          `json:"userId"`
	Emoji     string          `json:"emoji"`
}

type ParticipantAddedEvent struct {
	ChatID      string               `json:"chatId"`
	UserID      string               `json:"userId"`
	Participant *ParticipantResponse `json:"participant"`
}

type ParticipantRemovedEvent struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type ChatRemovedEvent struct {
	ChatID string `json:"chatId"`
}

type ChatNewEvent struct {
	Chat *ChatResponse `json:"chat"`
}

type TypingEvent struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}
