package repositories

import (
	"agency_backend/internal/models/chat"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MentionRepository interface {
	CreateIfAbsent(db *gorm.DB, sourceType, sourceID, userID string) (bool, error)
	MarkNotified(db *gorm.DB, sourceType, sourceID, userID string) error
	FindBySource(db *gorm.DB, sourceType, sourceID string) ([]chat.Mention, error)
}

type MentionRepositoryImpl struct{}

func NewMentionRepository() MentionRepository {
	return &MentionRepositoryImpl{}
}

// CreateIfAbsent - true, если упоминание создано этим вызовом
func (r *MentionRepositoryImpl) CreateIfAbsent(db *gorm.DB, sourceType, sourceID, userID string) (bool, error) {
	mention := &chat.Mention{SourceType: sourceType, SourceID: sourceID, UserID: userID}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_type"}, {Name: "source_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(mention)
	return result.RowsAffected > 0, result.Error
}

func (r *MentionRepositoryImpl) MarkNotified(db *gorm.DB, sourceType, sourceID, userID string) error {
	return db.Model(&chat.Mention{}).
		Where("source_type = ? AND source_id = ? AND user_id = ?", sourceType, sourceID, userID).
		UpdateColumn("notified", true).Error
}

func (r *MentionRepositoryImpl) FindBySource(db *gorm.DB, sourceType, sourceID string) ([]chat.Mention, error) {
	var mentions []chat.Mention
	err := db.Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Order("created_at ASC").
		Find(&mentions).Error
	return mentions, err
}
