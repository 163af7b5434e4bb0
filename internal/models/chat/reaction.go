package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageReaction - сам факт существования строки означает "реакция поставлена".
// Тройка (message_id, user_id, emoji) уникальна на уровне БД.
type MessageReaction struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	MessageID string    `gorm:"type:uuid;not null;uniqueIndex:ux_message_reaction,priority:1"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:ux_message_reaction,priority:2"`
	Emoji     string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_message_reaction,priority:3"`
	CreatedAt time.Time `gorm:"not null"`
}

func (r *MessageReaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Допустимые реакции
const (
	EmojiThumbsUp  = "thumbs_up"
	EmojiHeart     = "heart"
	EmojiLaugh     = "laugh"
	EmojiSurprised = "surprised"
	EmojiSad       = "sad"
	EmojiParty     = "party"
	EmojiFire      = "fire"
	EmojiEyes      = "eyes"
)

var allowedEmoji = map[string]bool{
	EmojiThumbsUp:  true,
	EmojiHeart:     true,
	EmojiLaugh:     true,
	EmojiSurprised: true,
	EmojiSad:       true,
	EmojiParty:     true,
	EmojiFire:      true,
	EmojiEyes:      true,
}

func IsAllowedEmoji(emoji string) bool {
	return allowedEmoji[emoji]
}
