package testutil

import (
	"testing"
	"time"

	"agency_backend/internal/models"
	"agency_backend/internal/models/chat"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// UserOption донастраивает тестового пользователя перед вставкой
type UserOption func(u *models.User)

func WithTelegram(chatID string) UserOption {
	return func(u *models.User) { u.TelegramChatID = &chatID }
}

func WithPushToken(token string) UserOption {
	return func(u *models.User) { u.PushToken = &token }
}

func WithoutEmail() UserOption {
	return func(u *models.User) { u.Email = "" }
}

func Inactive() UserOption {
	return func(u *models.User) { u.IsActive = false }
}

func WithPreferences(p models.NotificationPreferences) UserOption {
	return func(u *models.User) { u.NotificationPreferences = models.NewNotificationPreferences(p) }
}

// CreateUser создает активного пользователя с уникальным email
func CreateUser(t *testing.T, db *gorm.DB, firstName, lastName string, opts ...UserOption) *models.User {
	t.Helper()

	user := &models.User{
		Email:     uuid.NewString() + "@example.com",
		FirstName: firstName,
		LastName:  lastName,
		IsActive:  true,
	}
	for _, opt := range opts {
		opt(user)
	}

	active := user.IsActive
	user.IsActive = true
	require.NoError(t, db.Create(user).Error)
	if !active {
		// false - нулевое значение, его GORM при Create не различает
		require.NoError(t, db.Model(user).UpdateColumn("is_active", false).Error)
		user.IsActive = false
	}
	return user
}

// CreateChat создает чат: creator и members становятся участниками
func CreateChat(t *testing.T, db *gorm.DB, isGroup bool, creator *models.User, members ...*models.User) *chat.Chat {
	t.Helper()

	now := time.Now().UTC()
	c := &chat.Chat{IsGroup: isGroup, CreatorID: creator.ID}
	if isGroup {
		name := "Group"
		c.Name = &name
	}
	c.Participants = append(c.Participants, chat.ChatParticipant{UserID: creator.ID, JoinedAt: now, LastReadAt: now})
	for _, m := range members {
		c.Participants = append(c.Participants, chat.ChatParticipant{UserID: m.ID, JoinedAt: now, LastReadAt: now})
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

// CreateMessage вставляет сообщение с явным временем создания
func CreateMessage(t *testing.T, db *gorm.DB, chatID, senderID, content string, at time.Time) *chat.Message {
	t.Helper()

	m := &chat.Message{ChatID: chatID, SenderID: senderID, Content: content, CreatedAt: at.UTC()}
	require.NoError(t, db.Create(m).Error)
	return m
}

// SetLastRead выставляет last_read_at участнику напрямую
func SetLastRead(t *testing.T, db *gorm.DB, chatID, userID string, at time.Time) {
	t.Helper()

	require.NoError(t, db.Model(&chat.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		UpdateColumn("last_read_at", at.UTC()).Error)
}
