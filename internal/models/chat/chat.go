package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Chat struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	IsGroup   bool      `gorm:"not null" json:"is_group"`
	Name      *string   `json:"name,omitempty"`
	CreatorID string    `gorm:"type:uuid;index;not null" json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`

	Participants []ChatParticipant `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
	Messages     []Message         `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"-"`
}

func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ChatParticipant - членство пользователя в чате. Пара (chat_id, user_id) уникальна.
type ChatParticipant struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"-"`
	ChatID     string    `gorm:"type:uuid;not null;uniqueIndex:ux_chat_participant,priority:1" json:"chat_id"`
	UserID     string    `gorm:"type:uuid;not null;uniqueIndex:ux_chat_participant,priority:2;index" json:"user_id"`
	JoinedAt   time.Time `gorm:"not null" json:"joined_at"`
	LastReadAt time.Time `gorm:"not null" json:"last_read_at"`
}

func (p *ChatParticipant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
