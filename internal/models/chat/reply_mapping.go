package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReplyMapping связывает исходящее сообщение бота с чатом, чтобы ответ
// в боте можно было превратить в новое сообщение чата. Никогда не изменяется.
type ReplyMapping struct {
	ID                string    `gorm:"primaryKey;type:uuid"`
	ChannelMessageRef string    `gorm:"type:varchar(128);not null;uniqueIndex"`
	ChatID            string    `gorm:"type:uuid;not null;index"`
	RecipientUserID   string    `gorm:"type:uuid;not null"`
	ReplyToUserID     string    `gorm:"type:uuid;not null"`
	CreatedAt         time.Time `gorm:"not null"`
	ExpiresAt         time.Time `gorm:"not null;index"`
}

func (m *ReplyMapping) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Expired - истек ли срок действия на момент now
func (m *ReplyMapping) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}
