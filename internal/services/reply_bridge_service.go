package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"agency_backend/internal/logger"
	"agency_backend/internal/metrics"
	"agency_backend/internal/models/chat"
	"agency_backend/internal/repositories"
	"agency_backend/internal/services/dto"
	"agency_backend/pkg/apperrors"

	"gorm.io/gorm"
)

// ReplyBridgeService связывает сообщения бота во внешнем мессенджере с чатами,
// чтобы ответ пользователя в мессенджере попал в нужный чат.
type ReplyBridgeService interface {
	ReplyRegistrar
	ResolveInboundReply(ctx context.Context, db *gorm.DB, ref, replyText string) (*dto.MessageResponse, error)
	SweepExpired(ctx context.Context, db *gorm.DB) (int64, error)
}

type replyBridgeService struct {
	replyRepo repositories.ReplyMappingRepository
	chatRepo  repositories.ChatRepository
	userRepo  repositories.UserRepository
	chats     ChatService
	mentions  MentionService
	ttl       time.Duration
	now       func() time.Time
}

func NewReplyBridgeService(
	replyRepo repositories.ReplyMappingRepository,
	chatRepo repositories.ChatRepository,
	userRepo repositories.UserRepository,
	chats ChatService,
	mentions MentionService,
	ttl time.Duration,
) ReplyBridgeService {
	return &replyBridgeService{
		replyRepo: replyRepo,
		chatRepo:  chatRepo,
		userRepo:  userRepo,
		chats:     chats,
		mentions:  mentions,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register сохраняет связь ref -> (чат, получатель, кому отвечать). Повторный ref игнорируется.
func (s *replyBridgeService) Register(ctx context.Context, db *gorm.DB, ref, chatID, recipientID, replyToID string) error {
	now := s.now()
	mapping := &chat.ReplyMapping{
		ChannelMessageRef: ref,
		ChatID:            chatID,
		RecipientUserID:   recipientID,
		ReplyToUserID:     replyToID,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.ttl),
	}

	created, err := s.replyRepo.Create(db, mapping)
	if err != nil {
		return apperrors.InternalError(err)
	}
	if !created {
		logger.CtxDebug(ctx, "Reply mapping already registered", "ref", ref)
	}
	return nil
}

// ResolveInboundReply публикует ответ из мессенджера в чат от имени получателя.
// Адресат - "@имя" в начале ответа (среди участников чата), иначе автор исходного события.
// Неизвестная или просроченная связь - ошибка, в чат ничего не пишется.
func (s *replyBridgeService) ResolveInboundReply(ctx context.Context, db *gorm.DB, ref, replyText string) (*dto.MessageResponse, error) {
	mapping, err := s.replyRepo.FindByRef(db, ref)
	if err != nil {
		if errors.Is(err, repositories.ErrReplyMappingNotFound) {
			return nil, apperrors.ErrReplyMappingNotFound
		}
		return nil, apperrors.InternalError(err)
	}
	if mapping.Expired(s.now()) {
		return nil, apperrors.ErrReplyMappingNotFound
	}

	text := strings.TrimSpace(replyText)
	if text == "" {
		return nil, apperrors.ErrEmptyMessage
	}

	ctx = logger.WithUserID(ctx, mapping.RecipientUserID)

	participants, err := s.chatRepo.FindParticipantIDs(db, mapping.ChatID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	scope := uniqueExcept(participants, mapping.RecipientUserID)

	targetID := mapping.ReplyToUserID
	body := text
	if len(scope) > 0 {
		match, err := s.mentions.MatchLeading(ctx, db, text, scope)
		if err != nil {
			return nil, err
		}
		if match != nil {
			targetID = match.User.ID
			body = match.Rest
		}
	}

	target, err := s.userRepo.FindByID(db, targetID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.InternalError(err)
	}

	content := "@" + target.DisplayName()
	if body != "" {
		content += " " + body
	}

	msg, err := s.chats.SendMessage(ctx, db, mapping.RecipientUserID, &dto.SendMessageRequest{
		ChatID:  mapping.ChatID,
		Content: content,
	})
	if err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "Inbound reply posted", "ref", ref, "chat_id", mapping.ChatID, "message_id", msg.ID)
	return msg, nil
}

func (s *replyBridgeService) SweepExpired(ctx context.Context, db *gorm.DB) (int64, error) {
	removed, err := s.replyRepo.DeleteExpired(db, s.now())
	if err != nil {
		return 0, apperrors.InternalError(err)
	}
	metrics.ReplyMappingsSwept(removed)
	return removed, nil
}
