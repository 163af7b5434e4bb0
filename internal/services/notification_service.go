package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"agency_backend/internal/logger"
	"agency_backend/internal/metrics"
	"agency_backend/internal/models"
	"agency_backend/internal/notify"
	"agency_backend/internal/repositories"
	"agency_backend/pkg/apperrors"

	"gorm.io/gorm"
)

const previewLength = 140

// Notification - событие, о котором нужно сообщить пользователю вне открытого чата
type Notification struct {
	EventType string // models.EventChatMessage | EventMention | EventChatAdded
	ChatID    string
	ChatName  string
	ActorID   string
	ActorName string
	Preview   string
	Link      string
}

// NotificationService рассылает уведомления по каналам push/email/telegram.
// Доставка at-most-once: каждый канал пробуется один раз, ошибки только логируются.
type NotificationService interface {
	Notify(ctx context.Context, db *gorm.DB, recipientID string, n Notification)
	NotifyAll(ctx context.Context, db *gorm.DB, recipientIDs []string, eventFor func(recipientID string) Notification)
	// Wait ждет завершения всех запущенных отправок
	Wait(ctx context.Context) error
	SetReplyRegistrar(r ReplyRegistrar)
}

// ReplyRegistrar запоминает исходящее сообщение бота, чтобы принять на него ответ
type ReplyRegistrar interface {
	Register(ctx context.Context, db *gorm.DB, ref, chatID, recipientID, replyToID string) error
}

// PreferenceStore решает, включен ли канал для события у пользователя
type PreferenceStore interface {
	ShouldNotify(ctx context.Context, user *models.User, eventType, channel string) bool
}

// ConfigPreferenceStore читает JSON-настройки пользователя,
// для незаданных пар событие/канал берет значение из конфига.
type ConfigPreferenceStore struct {
	Defaults map[string]bool
}

func (p ConfigPreferenceStore) ShouldNotify(ctx context.Context, user *models.User, eventType, channel string) bool {
	if enabled, ok := user.NotificationPreferences.Data().Lookup(eventType, channel); ok {
		return enabled
	}
	if enabled, ok := p.Defaults[channel]; ok {
		return enabled
	}
	return true
}

type notificationService struct {
	userRepo repositories.UserRepository
	presence PresenceChecker
	prefs    PreferenceStore
	senders  map[string]notify.Sender
	timeout  time.Duration

	mu    sync.RWMutex
	reply ReplyRegistrar

	inflight sync.WaitGroup
}

func NewNotificationService(
	userRepo repositories.UserRepository,
	presence PresenceChecker,
	prefs PreferenceStore,
	senders []notify.Sender,
	channelTimeout time.Duration,
) NotificationService {
	byChannel := make(map[string]notify.Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &notificationService{
		userRepo: userRepo,
		presence: presence,
		prefs:    prefs,
		senders:  byChannel,
		timeout:  channelTimeout,
	}
}

func (s *notificationService) SetReplyRegistrar(r ReplyRegistrar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = r
}

func (s *notificationService) replyRegistrar() ReplyRegistrar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reply
}

// Notify выбирает каналы и запускает отправку. Не ждет доставки.
//
//	push     - включен в настройках и есть push-токен (онлайн или нет)
//	email    - пользователь офлайн, включен в настройках, есть email
//	telegram - пользователь офлайн, включен в настройках, привязан чат бота
func (s *notificationService) Notify(ctx context.Context, db *gorm.DB, recipientID string, n Notification) {
	s.NotifyAll(ctx, db, []string{recipientID}, func(string) Notification { return n })
}

// NotifyAll загружает получателей одним запросом, неактивные и удаленные пропускаются
func (s *notificationService) NotifyAll(ctx context.Context, db *gorm.DB, recipientIDs []string, eventFor func(recipientID string) Notification) {
	if len(recipientIDs) == 0 {
		return
	}
	users, err := s.userRepo.FindActiveByIDs(db, recipientIDs)
	if err != nil {
		logger.CtxWithError(ctx, "Failed to load notification recipients", err, "recipients", len(recipientIDs))
		return
	}
	for i := range users {
		s.dispatch(ctx, db, &users[i], eventFor(users[i].ID))
	}
}

func (s *notificationService) dispatch(ctx context.Context, db *gorm.DB, user *models.User, n Notification) {
	online := s.presence.IsOnline(user.ID)
	target := notify.Target{
		UserID: user.ID,
		Name:   user.DisplayName(),
		Email:  user.Email,
	}
	if user.PushToken != nil {
		target.PushToken = *user.PushToken
	}
	if user.TelegramChatID != nil {
		target.TelegramChatID = *user.TelegramChatID
	}

	var channels []string
	if target.PushToken != "" && s.prefs.ShouldNotify(ctx, user, n.EventType, models.ChannelPush) {
		channels = append(channels, models.ChannelPush)
	}
	if !online && target.Email != "" && s.prefs.ShouldNotify(ctx, user, n.EventType, models.ChannelEmail) {
		channels = append(channels, models.ChannelEmail)
	}
	if !online && target.TelegramChatID != "" && s.prefs.ShouldNotify(ctx, user, n.EventType, models.ChannelTelegram) {
		channels = append(channels, models.ChannelTelegram)
	}

	content := buildContent(n)
	for _, channel := range channels {
		sender, ok := s.senders[channel]
		if !ok {
			continue
		}
		s.inflight.Add(1)
		go s.deliver(db, sender, target, content, n)
	}
}

// deliver - одна попытка по одному каналу со своим дедлайном.
// Контекст запроса сюда не передается: доставка переживает отключение клиента.
func (s *notificationService) deliver(db *gorm.DB, sender notify.Sender, target notify.Target, content notify.Content, n Notification) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Notification sender panicked", "channel", sender.Channel(), "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	result, err := sender.Send(ctx, target, content)
	elapsed := time.Since(start)

	metrics.Delivery(sender.Channel(), elapsed, err)
	if err != nil {
		logger.DeliveryLog(sender.Channel(), target.UserID, elapsed, apperrors.ExternalDeliveryError(sender.Channel(), err))
		return
	}
	logger.DeliveryLog(sender.Channel(), target.UserID, elapsed, nil)

	if sender.Channel() != models.ChannelTelegram || result.MessageRef == "" || n.ChatID == "" {
		return
	}
	registrar := s.replyRegistrar()
	if registrar == nil {
		return
	}
	regCtx, regCancel := context.WithTimeout(context.Background(), s.timeout)
	defer regCancel()
	if err := registrar.Register(regCtx, db.WithContext(regCtx), result.MessageRef, n.ChatID, target.UserID, n.ActorID); err != nil {
		logger.Error("Failed to register reply mapping", "ref", result.MessageRef, "chat_id", n.ChatID, "error", err.Error())
	}
}

func (s *notificationService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildContent(n Notification) notify.Content {
	c := notify.Content{
		EventType: n.EventType,
		ChatID:    n.ChatID,
		Link:      n.Link,
	}
	switch n.EventType {
	case models.EventMention:
		c.Title = n.ActorName + " mentioned you"
		c.Body = preview(n.Preview)
	case models.EventChatAdded:
		name := n.ChatName
		if name == "" {
			name = "a group chat"
		}
		c.Title = n.ActorName + " added you to " + name
		c.Body = "You can now read and send messages in " + name + "."
	default:
		c.Title = "New message from " + n.ActorName
		c.Body = preview(n.Preview)
	}
	return c
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "Sent an attachment"
	}
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength]) + "…"
}
