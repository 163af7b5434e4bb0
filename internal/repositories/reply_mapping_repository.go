package repositories

import (
	"errors"
	"time"

	"agency_backend/internal/models/chat"

	"gorm.io/gorm"
)

type ReplyMappingRepository interface {
	Create(db *gorm.DB, m *chat.ReplyMapping) (bool, error)
	FindByRef(db *gorm.DB, ref string) (*chat.ReplyMapping, error)
	DeleteExpired(db *gorm.DB, now time.Time) (int64, error)
}

type ReplyMappingRepositoryImpl struct{}

func NewReplyMappingRepository() ReplyMappingRepository {
	return &ReplyMappingRepositoryImpl{}
}

// Create - false, если маппинг с таким ref уже был. Существующая запись не меняется.
func (r *ReplyMappingRepositoryImpl) Create(db *gorm.DB, m *chat.ReplyMapping) (bool, error) {
	if err := db.Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *ReplyMappingRepositoryImpl) FindByRef(db *gorm.DB, ref string) (*chat.ReplyMapping, error) {
	var m chat.ReplyMapping
	err := db.Where("channel_message_ref = ?", ref).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReplyMappingNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *ReplyMappingRepositoryImpl) DeleteExpired(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Where("expires_at <= ?", now).Delete(&chat.ReplyMapping{})
	return result.RowsAffected, result.Error
}
