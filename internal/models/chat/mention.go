package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Источники упоминаний
const (
	MentionSourceMessage = "message"
	MentionSourceComment = "comment"
)

// Mention - пользователь упомянут по имени в сообщении или комментарии к задаче
type Mention struct {
	ID         string    `gorm:"primaryKey;type:uuid"`
	SourceType string    `gorm:"type:varchar(16);not null;uniqueIndex:ux_mention_source_user,priority:1"`
	SourceID   string    `gorm:"type:uuid;not null;uniqueIndex:ux_mention_source_user,priority:2"`
	UserID     string    `gorm:"type:uuid;not null;uniqueIndex:ux_mention_source_user,priority:3;index"`
	Notified   bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (m *Mention) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
