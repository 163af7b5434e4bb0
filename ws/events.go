package ws

import (
	"encoding/json"

	"agency_backend/internal/services/dto"
)

// Клиентские события
const (
	EventChatJoin       = "chat:join"
	EventChatLeave      = "chat:leave"
	EventMessageSend    = "message:send"
	EventMessageRead    = "message:read"
	EventTypingStart    = "typing:start"
	EventTypingStop     = "typing:stop"
	EventReactionToggle = "reaction:toggle"

	EventError = "error"
)

// Envelope - формат кадра в обе стороны
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outgoingEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type ChatRef struct {
	ChatID string `json:"chatId" validate:"required"`
}

type MessageReadPayload struct {
	ChatID     string   `json:"chatId" validate:"required"`
	MessageIDs []string `json:"messageIds" validate:"omitempty,max=500"`
}

type ReactionTogglePayload struct {
	ChatID    string `json:"chatId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,chat-emoji"`
}

// MessageSendPayload совпадает с REST-запросом отправки
type MessageSendPayload = dto.SendMessageRequest

// ErrorPayload - ответ вызывающему соединению, операция не выполнена
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Event   string `json:"event,omitempty"`
}

func encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(outgoingEnvelope{Event: event, Data: data})
}
