package services

import (
	"agency_backend/internal/config"
	"agency_backend/internal/notify"
	"agency_backend/internal/repositories"
	"agency_backend/internal/storage"
)

// Dependencies - внешние зависимости сервисного слоя
type Dependencies struct {
	Config      *config.Config
	Broadcaster Broadcaster
	Presence    PresenceChecker
	Blobs       storage.BlobStore
	Senders     []notify.Sender
	Preferences PreferenceStore // nil - настройки пользователя + defaults из конфига
}

// ServiceContainer содержит все сервисы приложения.
type ServiceContainer struct {
	NotificationService NotificationService
	MentionService      MentionService
	ChatService         ChatService
	ReplyBridgeService  ReplyBridgeService
}

// NewServiceContainer собирает репозитории и сервисы.
// Ответы из мессенджера регистрируются через ReplyBridgeService после отправки в telegram.
func NewServiceContainer(deps Dependencies) *ServiceContainer {
	cfg := deps.Config

	userRepo := repositories.NewUserRepository()
	chatRepo := repositories.NewChatRepository()
	messageRepo := repositories.NewMessageRepository()
	reactionRepo := repositories.NewReactionRepository()
	mentionRepo := repositories.NewMentionRepository()
	replyRepo := repositories.NewReplyMappingRepository()

	prefs := deps.Preferences
	if prefs == nil {
		prefs = ConfigPreferenceStore{Defaults: cfg.Notifications.Defaults}
	}

	notificationService := NewNotificationService(userRepo, deps.Presence, prefs, deps.Senders, cfg.Notifications.ChannelTimeout)
	mentionService := NewMentionService(mentionRepo, userRepo, notificationService)
	chatService := NewChatService(
		chatRepo,
		messageRepo,
		reactionRepo,
		userRepo,
		mentionService,
		notificationService,
		deps.Broadcaster,
		deps.Presence,
		deps.Blobs,
		cfg,
	)
	replyBridgeService := NewReplyBridgeService(replyRepo, chatRepo, userRepo, chatService, mentionService, cfg.ReplyBridge.TTL)
	notificationService.SetReplyRegistrar(replyBridgeService)

	return &ServiceContainer{
		NotificationService: notificationService,
		MentionService:      mentionService,
		ChatService:         chatService,
		ReplyBridgeService:  replyBridgeService,
	}
}
