package handlers

import (
	"agency_backend/internal/services"
	"agency_backend/internal/validator"
)

// AppHandlers содержит все хэндлеры приложения.
type AppHandlers struct {
	ChatHandler            *ChatHandler
	MentionHandler         *MentionHandler
	TelegramWebhookHandler *TelegramWebhookHandler
	HealthHandler          *HealthHandler
}

// NewAppHandlers собирает хэндлеры поверх готового контейнера сервисов
func NewAppHandlers(v *validator.Validator, svc *services.ServiceContainer, telegramSecret string) *AppHandlers {
	base := NewBaseHandler(v)

	return &AppHandlers{
		ChatHandler:            NewChatHandler(base, svc.ChatService),
		MentionHandler:         NewMentionHandler(base, svc.MentionService),
		TelegramWebhookHandler: NewTelegramWebhookHandler(base, svc.ReplyBridgeService, telegramSecret),
		HealthHandler:          NewHealthHandler(base),
	}
}
