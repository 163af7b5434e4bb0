package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageReadReceipt создается один раз на пару (message_id, user_id)
type MessageReadReceipt struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	MessageID string    `gorm:"type:uuid;not null;uniqueIndex:ux_read_receipt,priority:1"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:ux_read_receipt,priority:2"`
	ReadAt    time.Time `gorm:"not null"`
}

func (r *MessageReadReceipt) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
