package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"agency_backend/internal/config"
	"agency_backend/internal/logger"
	"agency_backend/internal/models"
	"agency_backend/internal/models/chat"
	"agency_backend/internal/repositories"
	"agency_backend/internal/services/dto"
	"agency_backend/internal/storage"
	"agency_backend/pkg/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxPageSize = 100

// Все методы принимают 'db *gorm.DB' (пул или транзакция из DBMiddleware).
// Мутации сначала сохраняются, события рассылаются только после коммита.
type ChatService interface {
	// Chat operations
	CreateChat(ctx context.Context, db *gorm.DB, userID string, req *dto.CreateChatRequest) (*dto.ChatResponse, error)
	GetChat(ctx context.Context, db *gorm.DB, chatID, userID string) (*dto.ChatResponse, error)
	ListChats(ctx context.Context, db *gorm.DB, userID string) ([]*dto.ChatResponse, error)
	GetUnreadSummary(ctx context.Context, db *gorm.DB, userID string) (*dto.UnreadSummary, error)

	// Message operations
	ListMessages(ctx context.Context, db *gorm.DB, chatID, userID string, criteria dto.MessageCriteria) (*dto.MessagePage, error)
	SendMessage(ctx context.Context, db *gorm.DB, userID string, req *dto.SendMessageRequest) (*dto.MessageResponse, error)
	UploadAttachment(ctx context.Context, db *gorm.DB, userID, chatID string, file *multipart.FileHeader) (*dto.UploadedAttachment, error)
	MarkRead(ctx context.Context, db *gorm.DB, userID, chatID string, messageIDs []string) (*dto.MessageReadEvent, error)
	SetTyping(ctx context.Context, db *gorm.DB, userID, chatID string, typing bool) error
	ToggleReaction(ctx context.Context, db *gorm.DB, userID, chatID, messageID, emoji string) (*dto.ReactionUpdatedEvent, error)

	// Participant operations
	AddParticipant(ctx context.Context, db *gorm.DB, actorID, chatID, userID string) (*dto.ParticipantResponse, error)
	RemoveParticipant(ctx context.Context, db *gorm.DB, actorID, chatID, userID string) error
	IsParticipant(ctx context.Context, db *gorm.DB, chatID, userID string) (bool, error)

	// Wait ждет фоновые задачи после отправки сообщений
	Wait(ctx context.Context) error
}

type chatService struct {
	chatRepo     repositories.ChatRepository
	messageRepo  repositories.MessageRepository
	reactionRepo repositories.ReactionRepository
	userRepo     repositories.UserRepository
	mentions     MentionService
	notifier     NotificationService
	broadcaster  Broadcaster
	presence     PresenceChecker
	blobs        storage.BlobStore
	cfg          *config.Config

	background sync.WaitGroup
}

func NewChatService(
	chatRepo repositories.ChatRepository,
	messageRepo repositories.MessageRepository,
	reactionRepo repositories.ReactionRepository,
	userRepo repositories.UserRepository,
	mentions MentionService,
	notifier NotificationService,
	broadcaster Broadcaster,
	presence PresenceChecker,
	blobs storage.BlobStore,
	cfg *config.Config,
) ChatService {
	return &chatService{
		chatRepo:     chatRepo,
		messageRepo:  messageRepo,
		reactionRepo: reactionRepo,
		userRepo:     userRepo,
		mentions:     mentions,
		notifier:     notifier,
		broadcaster:  broadcaster,
		presence:     presence,
		blobs:        blobs,
		cfg:          cfg,
	}
}

// ---------------- Chat operations ----------------

// CreateChat - личный чат ровно с одним собеседником (существующий переиспользуется)
// или групповой с одним и более участниками. Создатель всегда участник.
func (s *chatService) CreateChat(ctx context.Context, db *gorm.DB, userID string, req *dto.CreateChatRequest) (*dto.ChatResponse, error) {
	others := uniqueExcept(req.ParticipantIDs, userID)
	if len(others) == 0 {
		return nil, apperrors.InvalidInput("chat", "At least one other participant is required")
	}
	if !req.IsGroup && len(others) != 1 {
		return nil, apperrors.InvalidInput("chat", "A direct chat must have exactly one other participant")
	}

	creator, err := s.userRepo.FindActiveByID(db, userID)
	if err != nil {
		return nil, handleChatError(err)
	}

	if !req.IsGroup {
		existing, err := s.chatRepo.FindDirectChatBetween(db, userID, others[0])
		if err == nil {
			return s.buildChatResponse(db, existing, userID, nil)
		}
		if !errors.Is(err, repositories.ErrChatNotFound) {
			return nil, apperrors.InternalError(err)
		}
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	users, err := s.userRepo.FindActiveByIDs(tx, others)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if len(users) != len(others) {
		return nil, apperrors.ErrUserNotFound
	}

	now := time.Now().UTC()
	c := &chat.Chat{
		IsGroup:   req.IsGroup,
		CreatorID: userID,
	}
	if req.IsGroup && req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name != "" {
			c.Name = &name
		}
	}
	c.Participants = append(c.Participants, chat.ChatParticipant{UserID: userID, JoinedAt: now, LastReadAt: now})
	for _, id := range others {
		c.Participants = append(c.Participants, chat.ChatParticipant{UserID: id, JoinedAt: now, LastReadAt: now})
	}

	if err := s.chatRepo.CreateChat(tx, c); err != nil {
		return nil, apperrors.InternalError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	resp, err := s.buildChatResponse(db, c, userID, nil)
	if err != nil {
		return nil, err
	}

	for _, p := range c.Participants {
		s.broadcaster.ToUser(p.UserID, EventChatNew, dto.ChatNewEvent{Chat: resp})
	}

	if c.IsGroup {
		s.notifier.NotifyAll(ctx, db, others, func(string) Notification {
			return Notification{
				EventType: models.EventChatAdded,
				ChatID:    c.ID,
				ChatName:  chatName(c),
				ActorID:   creator.ID,
				ActorName: creator.DisplayName(),
				Link:      s.chatLink(c.ID),
			}
		})
	}

	return resp, nil
}

func (s *chatService) GetChat(ctx context.Context, db *gorm.DB, chatID, userID string) (*dto.ChatResponse, error) {
	if err := s.ensureParticipant(db, chatID, userID); err != nil {
		return nil, err
	}

	c, err := s.chatRepo.FindChatByID(db, chatID)
	if err != nil {
		return nil, handleChatError(err)
	}

	counts, err := s.chatRepo.GetUnreadCounts(db, userID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return s.buildChatResponse(db, c, userID, counts)
}

// ListChats - чаты пользователя, свежие сверху. Счетчики непрочитанных одним запросом.
func (s *chatService) ListChats(ctx context.Context, db *gorm.DB, userID string) ([]*dto.ChatResponse, error) {
	chats, err := s.chatRepo.FindUserChats(db, userID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	counts, err := s.chatRepo.GetUnreadCounts(db, userID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	var ids []string
	for _, c := range chats {
		for _, p := range c.Participants {
			ids = append(ids, p.UserID)
		}
	}
	names, err := s.userNames(db, ids)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.ChatResponse, 0, len(chats))
	for i := range chats {
		responses = append(responses, s.toChatResponse(&chats[i], names, counts))
	}
	return responses, nil
}

func (s *chatService) GetUnreadSummary(ctx context.Context, db *gorm.DB, userID string) (*dto.UnreadSummary, error) {
	counts, err := s.chatRepo.GetUnreadCounts(db, userID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	summary := &dto.UnreadSummary{Chats: counts}
	for _, n := range counts {
		summary.Total += n
	}
	return summary, nil
}

// ---------------- Message operations ----------------

// ListMessages - история с курсором before (id сообщения), в ответе от старых к новым
func (s *chatService) ListMessages(ctx context.Context, db *gorm.DB, chatID, userID string, criteria dto.MessageCriteria) (*dto.MessagePage, error) {
	if err := s.ensureParticipant(db, chatID, userID); err != nil {
		return nil, err
	}

	limit := criteria.Limit
	if limit <= 0 {
		limit = s.cfg.Chat.DefaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	page := repositories.MessagePageCriteria{Limit: limit + 1}
	if s.cfg.Chat.HistoryWindowDays > 0 {
		page.Since = time.Now().UTC().AddDate(0, 0, -s.cfg.Chat.HistoryWindowDays)
	}
	if criteria.Before != "" {
		cursor, err := s.messageRepo.FindMessageInChat(db, chatID, criteria.Before)
		if err != nil {
			return nil, handleChatError(err)
		}
		page.Before = cursor
	}

	messages, err := s.messageRepo.FindMessagesPage(db, chatID, page)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	var senderIDs []string
	for _, m := range messages {
		senderIDs = append(senderIDs, m.SenderID)
	}
	names, err := s.userNames(db, senderIDs)
	if err != nil {
		return nil, err
	}

	result := &dto.MessagePage{
		Messages: make([]*dto.MessageResponse, 0, len(messages)),
		HasMore:  hasMore,
	}
	for i := len(messages) - 1; i >= 0; i-- {
		result.Messages = append(result.Messages, s.toMessageResponse(ctx, &messages[i], names[messages[i].SenderID]))
	}
	if hasMore && len(result.Messages) > 0 {
		cursor := result.Messages[0].ID
		result.NextCursor = &cursor
	}
	return result, nil
}

// SendMessage сохраняет сообщение с вложениями и отметкой прочтения отправителя
// в одной транзакции. После коммита - рассылка message:new и фоновая обработка
// упоминаний и уведомлений.
func (s *chatService) SendMessage(ctx context.Context, db *gorm.DB, userID string, req *dto.SendMessageRequest) (*dto.MessageResponse, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		return nil, apperrors.ErrEmptyMessage
	}
	if max := s.cfg.Chat.MaxContentLength; max > 0 && utf8.RuneCountInString(content) > max {
		return nil, apperrors.ErrMessageTooLong.WithDetails(map[string]int{"max_length": max})
	}

	if err := s.ensureParticipant(db, req.ChatID, userID); err != nil {
		return nil, err
	}

	prefix := attachmentPrefix(req.ChatID)
	for _, a := range req.Attachments {
		key, err := storage.CleanKey(a.StorageKey)
		if err != nil || !strings.HasPrefix(key, prefix) {
			return nil, apperrors.ErrForeignAttachment
		}
	}

	for _, a := range req.Attachments {
		ok, err := s.blobs.Exists(ctx, a.StorageKey)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		if !ok {
			return nil, apperrors.ErrForeignAttachment
		}
	}

	sender, err := s.userRepo.FindByID(db, userID)
	if err != nil {
		return nil, handleChatError(err)
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	// Повторная проверка внутри транзакции: участника могли удалить
	if ok, err := s.chatRepo.IsParticipant(tx, req.ChatID, userID); err != nil {
		return nil, apperrors.InternalError(err)
	} else if !ok {
		return nil, apperrors.ErrChatAccessDenied
	}

	now := time.Now().UTC()
	message := &chat.Message{
		ChatID:    req.ChatID,
		SenderID:  userID,
		Content:   content,
		CreatedAt: now,
	}
	for i, a := range req.Attachments {
		message.Attachments = append(message.Attachments, chat.MessageAttachment{
			Position:   i,
			StorageKey: a.StorageKey,
			FileName:   a.FileName,
			MimeType:   a.MimeType,
			Size:       a.Size,
		})
	}

	if err := s.messageRepo.CreateMessage(tx, message); err != nil {
		return nil, apperrors.InternalError(err)
	}

	receipt := []chat.MessageReadReceipt{{MessageID: message.ID, UserID: userID, ReadAt: now}}
	if _, err := s.messageRepo.CreateReadReceipts(tx, receipt); err != nil {
		return nil, apperrors.InternalError(err)
	}

	if err := s.chatRepo.TouchChat(tx, req.ChatID, now); err != nil {
		return nil, apperrors.InternalError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	resp := s.toMessageResponse(ctx, message, sender.DisplayName())

	participantIDs, err := s.chatRepo.FindParticipantIDs(db, req.ChatID)
	if err != nil {
		// сообщение уже сохранено, клиенты догонят через историю
		logger.CtxWithError(ctx, "Failed to load participants for broadcast", err, "chat_id", req.ChatID)
		return resp, nil
	}

	s.broadcaster.Fanout(req.ChatID, participantIDs, EventMessageNew, dto.MessageNewEvent{Message: resp, TempID: req.TempID})

	s.background.Add(1)
	go s.afterSend(db, message, sender, participantIDs)

	return resp, nil
}

// afterSend - упоминания и уведомления. Упомянутый получает mention вместо chat_message.
func (s *chatService) afterSend(db *gorm.DB, message *chat.Message, sender *models.User, participantIDs []string) {
	defer s.background.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Post-send task panicked", "message_id", message.ID, "panic", fmt.Sprint(r))
		}
	}()

	ctx := logger.WithUserID(context.Background(), sender.ID)
	db = db.WithContext(ctx)

	mentioned := make(map[string]bool)
	if message.Content != "" {
		users, err := s.mentions.Resolve(ctx, db, message.Content, sender.ID, participantIDs)
		if err != nil {
			logger.CtxWithError(ctx, "Failed to resolve mentions", err, "message_id", message.ID)
		}
		ids := make([]string, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		created, err := s.mentions.RecordMentions(ctx, db, chat.MentionSourceMessage, message.ID, ids)
		if err != nil {
			logger.CtxWithError(ctx, "Failed to record mentions", err, "message_id", message.ID)
		}
		for _, id := range created {
			mentioned[id] = true
		}
	}

	recipients := uniqueExcept(participantIDs, sender.ID)
	s.notifier.NotifyAll(ctx, db, recipients, func(recipientID string) Notification {
		eventType := models.EventChatMessage
		if mentioned[recipientID] {
			eventType = models.EventMention
		}
		return Notification{
			EventType: eventType,
			ChatID:    message.ChatID,
			ActorID:   sender.ID,
			ActorName: sender.DisplayName(),
			Preview:   message.Content,
			Link:      s.chatLink(message.ChatID),
		}
	})

	for id := range mentioned {
		if err := s.mentions.MarkNotified(ctx, db, chat.MentionSourceMessage, message.ID, id); err != nil {
			logger.CtxWithError(ctx, "Failed to mark mention as notified", err, "message_id", message.ID, "user_id", id)
		}
	}
}

// UploadAttachment кладет файл в хранилище под префикс чата. Сообщение
// создается отдельно через SendMessage с полученным ключом.
func (s *chatService) UploadAttachment(ctx context.Context, db *gorm.DB, userID, chatID string, file *multipart.FileHeader) (*dto.UploadedAttachment, error) {
	if err := s.ensureParticipant(db, chatID, userID); err != nil {
		return nil, err
	}

	policy := s.cfg.Attachments()
	if policy.MaxSize > 0 && file.Size > policy.MaxSize {
		return nil, apperrors.ErrFileTooLarge.WithDetails(map[string]int64{"max_size": policy.MaxSize})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			mimeType = byExt
		}
	}
	if !policy.Allows(mimeType) {
		return nil, apperrors.ErrInvalidFileType.WithDetails(map[string]string{"mime_type": mimeType})
	}

	src, err := file.Open()
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	defer src.Close()

	key := attachmentPrefix(chatID) + uuid.NewString() + ext
	if err := s.blobs.Put(ctx, key, src, file.Size, mimeType); err != nil {
		return nil, apperrors.InternalError(err)
	}

	return &dto.UploadedAttachment{
		StorageKey: key,
		FileName:   filepath.Base(file.Filename),
		MimeType:   mimeType,
		Size:       file.Size,
	}, nil
}

// MarkRead создает недостающие отметки прочтения. Пустой список - все чужие
// сообщения новее last_read_at. last_read_at двигается только вперед и только
// если появилась хотя бы одна новая отметка, поэтому повтор вызова ничего не меняет.
func (s *chatService) MarkRead(ctx context.Context, db *gorm.DB, userID, chatID string, messageIDs []string) (*dto.MessageReadEvent, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	participant, err := s.chatRepo.FindParticipant(tx, chatID, userID)
	if err != nil {
		return nil, handleChatError(err)
	}

	var ids []string
	if len(messageIDs) == 0 {
		ids, err = s.messageRepo.FindUnreadMessageIDs(tx, chatID, userID, participant.LastReadAt)
	} else {
		ids, err = s.messageRepo.FilterChatMessageIDs(tx, chatID, uniqueExcept(messageIDs, ""))
	}
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	now := time.Now().UTC()
	receipts := make([]chat.MessageReadReceipt, 0, len(ids))
	for _, id := range ids {
		receipts = append(receipts, chat.MessageReadReceipt{MessageID: id, UserID: userID, ReadAt: now})
	}

	created, err := s.messageRepo.CreateReadReceipts(tx, receipts)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if created > 0 {
		if _, err := s.chatRepo.AdvanceLastRead(tx, chatID, userID, now); err != nil {
			return nil, apperrors.InternalError(err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	event := &dto.MessageReadEvent{ChatID: chatID, UserID: userID, MessageIDs: ids, ReadAt: now}
	if ids == nil {
		event.MessageIDs = []string{}
	}
	if created > 0 {
		s.fanoutToChat(ctx, db, chatID, EventMessageRead, event)
	}
	return event, nil
}

// SetTyping ничего не сохраняет, только рассылает
func (s *chatService) SetTyping(ctx context.Context, db *gorm.DB, userID, chatID string, typing bool) error {
	if err := s.ensureParticipant(db, chatID, userID); err != nil {
		return err
	}

	event := EventTypingStop
	if typing {
		event = EventTypingStart
	}
	s.broadcaster.ToChat(chatID, event, dto.TypingEvent{ChatID: chatID, UserID: userID})
	return nil
}

// ToggleReaction - наличие строки и есть состояние реакции. Гонки разрешает
// уникальный индекс (message_id, user_id, emoji), без блокировок.
func (s *chatService) ToggleReaction(ctx context.Context, db *gorm.DB, userID, chatID, messageID, emoji string) (*dto.ReactionUpdatedEvent, error) {
	if !chat.IsAllowedEmoji(emoji) {
		return nil, apperrors.ErrEmojiNotAllowed
	}
	if err := s.ensureParticipant(db, chatID, userID); err != nil {
		return nil, err
	}
	if _, err := s.messageRepo.FindMessageInChat(db, chatID, messageID); err != nil {
		return nil, handleChatError(err)
	}

	action, err := s.reactionRepo.Toggle(db, messageID, userID, emoji)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	reactions, err := s.reactionRepo.FindByMessage(db, messageID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	event := &dto.ReactionUpdatedEvent{
		ChatID:    chatID,
		MessageID: messageID,
		Reactions: groupReactions(reactions),
		Action:    action,
		UserID:    userID,
		Emoji:     emoji,
	}
	s.fanoutToChat(ctx, db, chatID, EventReactionUpdated, event)
	return event, nil
}

// ---------------- Participant operations ----------------

// AddParticipant - только в групповом чате и только создателем
func (s *chatService) AddParticipant(ctx context.Context, db *gorm.DB, actorID, chatID, userID string) (*dto.ParticipantResponse, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	if ok, err := s.chatRepo.IsParticipant(tx, chatID, actorID); err != nil {
		return nil, apperrors.InternalError(err)
	} else if !ok {
		return nil, apperrors.ErrChatAccessDenied
	}

	c, err := s.chatRepo.FindChatByID(tx, chatID)
	if err != nil {
		return nil, handleChatError(err)
	}
	if !c.IsGroup {
		return nil, apperrors.ErrNotGroupChat
	}
	if c.CreatorID != actorID {
		return nil, apperrors.ErrNotChatCreator
	}

	user, err := s.userRepo.FindActiveByID(tx, userID)
	if err != nil {
		return nil, handleChatError(err)
	}

	now := time.Now().UTC()
	participant := &chat.ChatParticipant{ChatID: chatID, UserID: userID, JoinedAt: now, LastReadAt: now}
	if err := s.chatRepo.AddParticipant(tx, participant); err != nil {
		return nil, handleChatError(err)
	}
	if err := s.chatRepo.TouchChat(tx, chatID, now); err != nil {
		return nil, apperrors.InternalError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	resp := &dto.ParticipantResponse{
		UserID:     userID,
		Name:       user.DisplayName(),
		IsOnline:   s.presence.IsOnline(userID),
		JoinedAt:   participant.JoinedAt,
		LastReadAt: participant.LastReadAt,
	}

	s.fanoutToChat(ctx, db, chatID, EventParticipantAdded, dto.ParticipantAddedEvent{
		ChatID:      chatID,
		UserID:      userID,
		Participant: resp,
	})

	if full, err := s.chatRepo.FindChatByID(db, chatID); err == nil {
		if chatResp, err := s.buildChatResponse(db, full, userID, nil); err == nil {
			s.broadcaster.ToUser(userID, EventChatNew, dto.ChatNewEvent{Chat: chatResp})
		}
	}

	if actor, err := s.userRepo.FindByID(db, actorID); err == nil {
		s.notifier.Notify(ctx, db, userID, Notification{
			EventType: models.EventChatAdded,
			ChatID:    chatID,
			ChatName:  chatName(c),
			ActorID:   actorID,
			ActorName: actor.DisplayName(),
			Link:      s.chatLink(chatID),
		})
	}

	return resp, nil
}

// RemoveParticipant - создатель удаляет любого, остальные только себя.
// Выйти может любой участник, включая создателя; последний вышедший удаляет чат.
func (s *chatService) RemoveParticipant(ctx context.Context, db *gorm.DB, actorID, chatID, userID string) error {
	tx := db.Begin()
	if tx.Error != nil {
		return apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	if ok, err := s.chatRepo.IsParticipant(tx, chatID, actorID); err != nil {
		return apperrors.InternalError(err)
	} else if !ok {
		return apperrors.ErrChatAccessDenied
	}

	c, err := s.chatRepo.FindChatByID(tx, chatID)
	if err != nil {
		return handleChatError(err)
	}
	if !c.IsGroup {
		return apperrors.ErrNotGroupChat
	}
	if actorID != userID && actorID != c.CreatorID {
		return apperrors.ErrNotChatCreator
	}

	if _, err := s.chatRepo.FindParticipant(tx, chatID, userID); err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return apperrors.ErrParticipantNotFound
		}
		return apperrors.InternalError(err)
	}

	count, err := s.chatRepo.CountParticipants(tx, chatID)
	if err != nil {
		return apperrors.InternalError(err)
	}

	deleted := false
	switch {
	case count <= 1:
		if err := s.chatRepo.DeleteChat(tx, chatID); err != nil {
			return apperrors.InternalError(err)
		}
		deleted = true
	default:
		if err := s.chatRepo.RemoveParticipant(tx, chatID, userID); err != nil {
			return handleChatError(err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return apperrors.InternalError(err)
	}

	if !deleted {
		remaining, err := s.chatRepo.FindParticipantIDs(db, chatID)
		if err != nil {
			logger.CtxWithError(ctx, "Failed to load participants for broadcast", err, "chat_id", chatID)
		}
		s.broadcaster.Fanout(chatID, append(remaining, userID), EventParticipantRemoved, dto.ParticipantRemovedEvent{
			ChatID: chatID,
			UserID: userID,
		})
	}
	s.broadcaster.ToUser(userID, EventChatRemoved, dto.ChatRemovedEvent{ChatID: chatID})
	s.broadcaster.EvictFromChat(chatID, userID)
	return nil
}

func (s *chatService) IsParticipant(ctx context.Context, db *gorm.DB, chatID, userID string) (bool, error) {
	ok, err := s.chatRepo.IsParticipant(db, chatID, userID)
	if err != nil {
		return false, apperrors.InternalError(err)
	}
	return ok, nil
}

func (s *chatService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---------------- Helpers ----------------

func (s *chatService) ensureParticipant(db *gorm.DB, chatID, userID string) error {
	ok, err := s.chatRepo.IsParticipant(db, chatID, userID)
	if err != nil {
		return apperrors.InternalError(err)
	}
	if !ok {
		return apperrors.ErrChatAccessDenied
	}
	return nil
}

func (s *chatService) fanoutToChat(ctx context.Context, db *gorm.DB, chatID, event string, data interface{}) {
	ids, err := s.chatRepo.FindParticipantIDs(db, chatID)
	if err != nil {
		logger.CtxWithError(ctx, "Failed to load participants for broadcast", err, "chat_id", chatID, "event", event)
		s.broadcaster.ToChat(chatID, event, data)
		return
	}
	s.broadcaster.Fanout(chatID, ids, event, data)
}

func (s *chatService) buildChatResponse(db *gorm.DB, c *chat.Chat, userID string, counts map[string]int64) (*dto.ChatResponse, error) {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	names, err := s.userNames(db, ids)
	if err != nil {
		return nil, err
	}
	return s.toChatResponse(c, names, counts), nil
}

func (s *chatService) toChatResponse(c *chat.Chat, names map[string]string, counts map[string]int64) *dto.ChatResponse {
	resp := &dto.ChatResponse{
		ID:           c.ID,
		IsGroup:      c.IsGroup,
		Name:         c.Name,
		CreatorID:    c.CreatorID,
		Participants: make([]*dto.ParticipantResponse, 0, len(c.Participants)),
		UnreadCount:  counts[c.ID],
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	for _, p := range c.Participants {
		resp.Participants = append(resp.Participants, &dto.ParticipantResponse{
			UserID:     p.UserID,
			Name:       names[p.UserID],
			IsOnline:   s.presence.IsOnline(p.UserID),
			JoinedAt:   p.JoinedAt,
			LastReadAt: p.LastReadAt,
		})
	}
	return resp
}

func (s *chatService) toMessageResponse(ctx context.Context, m *chat.Message, senderName string) *dto.MessageResponse {
	resp := &dto.MessageResponse{
		ID:          m.ID,
		ChatID:      m.ChatID,
		SenderID:    m.SenderID,
		SenderName:  senderName,
		Content:     m.Content,
		Attachments: make([]*dto.AttachmentResponse, 0, len(m.Attachments)),
		CreatedAt:   m.CreatedAt,
	}
	for _, a := range m.Attachments {
		url, err := s.blobs.SignedURL(ctx, a.StorageKey, s.cfg.Storage.SignedTTL)
		if err != nil {
			logger.CtxWithError(ctx, "Failed to sign attachment URL", err, "storage_key", a.StorageKey)
		}
		resp.Attachments = append(resp.Attachments, &dto.AttachmentResponse{
			ID:         a.ID,
			Position:   a.Position,
			StorageKey: a.StorageKey,
			FileName:   a.FileName,
			MimeType:   a.MimeType,
			Size:       a.Size,
			URL:        url,
		})
	}
	return resp
}

// userNames - id -> отображаемое имя (включая неактивных, для истории)
func (s *chatService) userNames(db *gorm.DB, ids []string) (map[string]string, error) {
	users, err := s.userRepo.FindByIDs(db, uniqueExcept(ids, ""))
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.DisplayName()
	}
	return names, nil
}

func (s *chatService) chatLink(chatID string) string {
	base := strings.TrimRight(s.cfg.Email.AppURL, "/")
	if base == "" {
		return ""
	}
	return base + "/chats/" + chatID
}

func attachmentPrefix(chatID string) string {
	return "chats/" + chatID + "/"
}

func chatName(c *chat.Chat) string {
	if c.Name != nil {
		return *c.Name
	}
	return ""
}

// groupReactions - по эмодзи в порядке первой реакции
func groupReactions(reactions []chat.MessageReaction) []dto.ReactionGroup {
	index := make(map[string]int)
	groups := make([]dto.ReactionGroup, 0)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, dto.ReactionGroup{Emoji: r.Emoji, UserIDs: []string{}})
		}
		groups[i].Count++
		groups[i].UserIDs = append(groups[i].UserIDs, r.UserID)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Count > groups[b].Count })
	return groups
}

// uniqueExcept убирает дубли, пустые строки и exclude, сохраняя порядок
func uniqueExcept(ids []string, exclude string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == exclude || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func handleChatError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		return apperrors.ErrChatNotFound
	case errors.Is(err, repositories.ErrMessageNotFound):
		return apperrors.ErrMessageNotFound
	case errors.Is(err, repositories.ErrParticipantNotFound):
		return apperrors.ErrChatAccessDenied
	case errors.Is(err, repositories.ErrParticipantExists):
		return apperrors.ErrParticipantExists
	case errors.Is(err, repositories.ErrUserNotFound):
		return apperrors.ErrUserNotFound
	default:
		return apperrors.InternalError(err)
	}
}
