package repositories

import (
	"agency_backend/internal/models/chat"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Действия переключателя реакции
const (
	ReactionAdded   = "added"
	ReactionRemoved = "removed"
)

type ReactionRepository interface {
	Exists(db *gorm.DB, messageID, userID, emoji string) (bool, error)
	Add(db *gorm.DB, messageID, userID, emoji string) (bool, error)
	Remove(db *gorm.DB, messageID, userID, emoji string) (bool, error)
	Toggle(db *gorm.DB, messageID, userID, emoji string) (string, error)
	FindByMessage(db *gorm.DB, messageID string) ([]chat.MessageReaction, error)
}

type ReactionRepositoryImpl struct{}

func NewReactionRepository() ReactionRepository {
	return &ReactionRepositoryImpl{}
}

func (r *ReactionRepositoryImpl) Exists(db *gorm.DB, messageID, userID, emoji string) (bool, error) {
	var count int64
	err := db.Model(&chat.MessageReaction{}).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Count(&count).Error
	return count > 0, err
}

// Add вставляет реакцию. При гонке с параллельной вставкой конфликт гасится индексом,
// false означает, что строку создал кто-то другой.
func (r *ReactionRepositoryImpl) Add(db *gorm.DB, messageID, userID, emoji string) (bool, error) {
	reaction := &chat.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}, {Name: "emoji"}},
		DoNothing: true,
	}).Create(reaction)
	return result.RowsAffected > 0, result.Error
}

// Remove удаляет реакцию. false - ее уже удалил параллельный запрос.
func (r *ReactionRepositoryImpl) Remove(db *gorm.DB, messageID, userID, emoji string) (bool, error) {
	result := db.Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&chat.MessageReaction{})
	return result.RowsAffected > 0, result.Error
}

// Toggle переключает реакцию. Итог гонки определяет уникальный индекс,
// поэтому результат всегда одно из двух состояний без дублей.
func (r *ReactionRepositoryImpl) Toggle(db *gorm.DB, messageID, userID, emoji string) (string, error) {
	exists, err := r.Exists(db, messageID, userID, emoji)
	if err != nil {
		return "", err
	}
	return r.toggleFrom(db, exists, messageID, userID, emoji)
}

// toggleFrom доводит переключение от прочитанного состояния.
// Строку могли удалить или вставить между чтением и записью, тогда запись
// ничего не меняет, а итог все равно соответствует намерению.
func (r *ReactionRepositoryImpl) toggleFrom(db *gorm.DB, exists bool, messageID, userID, emoji string) (string, error) {
	if exists {
		if _, err := r.Remove(db, messageID, userID, emoji); err != nil {
			return "", err
		}
		return ReactionRemoved, nil
	}
	if _, err := r.Add(db, messageID, userID, emoji); err != nil {
		return "", err
	}
	return ReactionAdded, nil
}

func (r *ReactionRepositoryImpl) FindByMessage(db *gorm.DB, messageID string) ([]chat.MessageReaction, error) {
	var reactions []chat.MessageReaction
	err := db.Where("message_id = ?", messageID).Order("created_at ASC").Find(&reactions).Error
	return reactions, err
}
