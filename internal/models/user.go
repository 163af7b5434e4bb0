package models

import (
	"strings"

	"gorm.io/datatypes"
)

// Типы событий, на которые пользователь может подписаться
const (
	EventChatMessage = "chat_message"
	EventMention     = "mention"
	EventChatAdded   = "chat_added"
)

// Каналы доставки уведомлений
const (
	ChannelPush     = "push"
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

// NotificationPreferences: событие -> канал -> включено
type NotificationPreferences map[string]map[string]bool

// Lookup возвращает (значение, задано ли оно пользователем)
func (p NotificationPreferences) Lookup(eventType, channel string) (bool, bool) {
	if p == nil {
		return false, false
	}
	channels, ok := p[eventType]
	if !ok {
		return false, false
	}
	enabled, ok := channels[channel]
	return enabled, ok
}

// User - запись каталога пользователей. Аутентификация живет во внешнем сервисе.
type User struct {
	BaseModel
	Email          string  `gorm:"index" json:"email"`
	FirstName      string  `gorm:"not null" json:"first_name"`
	LastName       string  `json:"last_name"`
	IsActive       bool    `gorm:"not null;index" json:"is_active"`
	TelegramChatID *string `gorm:"index" json:"-"`
	PushToken      *string `json:"-"`

	NotificationPreferences datatypes.JSONType[NotificationPreferences] `gorm:"type:jsonb" json:"notification_preferences"`
}

// DisplayName - "Имя Фамилия" или только имя
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NewNotificationPreferences оборачивает настройки для JSON-колонки
func NewNotificationPreferences(p NotificationPreferences) datatypes.JSONType[NotificationPreferences] {
	return datatypes.NewJSONType(p)
}
