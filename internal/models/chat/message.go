package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Message struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	ChatID    string    `gorm:"type:uuid;not null;index:idx_messages_chat_created,priority:1" json:"chat_id"`
	SenderID  string    `gorm:"type:uuid;not null;index" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_chat_created,priority:2" json:"created_at"`

	Attachments  []MessageAttachment  `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
	Reactions    []MessageReaction    `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"-"`
	ReadReceipts []MessageReadReceipt `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"-"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MessageAttachment - вложение. Порядок задается полем Position.
type MessageAttachment struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	MessageID  string    `gorm:"type:uuid;not null;index" json:"message_id"`
	Position   int       `gorm:"not null" json:"position"`
	StorageKey string    `gorm:"not null" json:"storage_key"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *MessageAttachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
