package repositories

import (
	"errors"
	"time"

	"agency_backend/internal/models/chat"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository interface {
	CreateMessage(db *gorm.DB, m *chat.Message) error
	FindMessageByID(db *gorm.DB, id string) (*chat.Message, error)
	FindMessageInChat(db *gorm.DB, chatID, messageID string) (*chat.Message, error)
	FindMessagesPage(db *gorm.DB, chatID string, criteria MessagePageCriteria) ([]chat.Message, error)

	// Read receipts
	FilterChatMessageIDs(db *gorm.DB, chatID string, ids []string) ([]string, error)
	FindUnreadMessageIDs(db *gorm.DB, chatID, userID string, since time.Time) ([]string, error)
	CreateReadReceipts(db *gorm.DB, receipts []chat.MessageReadReceipt) (int64, error)
	FindReadReceiptsByMessage(db *gorm.DB, messageID string) ([]chat.MessageReadReceipt, error)
}

// MessagePageCriteria - курсорная выборка: Before - сообщение-курсор (не включается),
// Since - нижняя граница окна истории, Limit - сколько строк вернуть.
type MessagePageCriteria struct {
	Before *chat.Message
	Since  time.Time
	Limit  int
}

type MessageRepositoryImpl struct{}

func NewMessageRepository() MessageRepository {
	return &MessageRepositoryImpl{}
}

func (r *MessageRepositoryImpl) CreateMessage(db *gorm.DB, m *chat.Message) error {
	return db.Create(m).Error
}

func (r *MessageRepositoryImpl) FindMessageByID(db *gorm.DB, id string) (*chat.Message, error) {
	var m chat.Message
	err := db.Preload("Attachments", orderByPosition).First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepositoryImpl) FindMessageInChat(db *gorm.DB, chatID, messageID string) (*chat.Message, error) {
	var m chat.Message
	err := db.Where("id = ? AND chat_id = ?", messageID, chatID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

// FindMessagesPage возвращает сообщения от новых к старым.
// Сортировка по (created_at, id) делает курсор устойчивым при одинаковом времени.
func (r *MessageRepositoryImpl) FindMessagesPage(db *gorm.DB, chatID string, criteria MessagePageCriteria) ([]chat.Message, error) {
	query := db.Preload("Attachments", orderByPosition).
		Where("chat_id = ?", chatID)

	if !criteria.Since.IsZero() {
		query = query.Where("created_at >= ?", criteria.Since)
	}
	if criteria.Before != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			criteria.Before.CreatedAt, criteria.Before.CreatedAt, criteria.Before.ID)
	}

	var messages []chat.Message
	err := query.Order("created_at DESC").Order("id DESC").
		Limit(criteria.Limit).
		Find(&messages).Error
	return messages, err
}

// --- Read receipts ---

// FilterChatMessageIDs оставляет только id, которые принадлежат чату
func (r *MessageRepositoryImpl) FilterChatMessageIDs(db *gorm.DB, chatID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []string
	err := db.Model(&chat.Message{}).
		Where("chat_id = ? AND id IN ?", chatID, ids).
		Order("created_at ASC").
		Pluck("id", &found).Error
	return found, err
}

// FindUnreadMessageIDs - чужие сообщения чата новее since
func (r *MessageRepositoryImpl) FindUnreadMessageIDs(db *gorm.DB, chatID, userID string, since time.Time) ([]string, error) {
	var ids []string
	err := db.Model(&chat.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND created_at > ?", chatID, userID, since).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// CreateReadReceipts вставляет отметки, уже существующие пропускаются.
// Возвращает число реально созданных строк.
func (r *MessageRepositoryImpl) CreateReadReceipts(db *gorm.DB, receipts []chat.MessageReadReceipt) (int64, error) {
	if len(receipts) == 0 {
		return 0, nil
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&receipts)
	return result.RowsAffected, result.Error
}

func (r *MessageRepositoryImpl) FindReadReceiptsByMessage(db *gorm.DB, messageID string) ([]chat.MessageReadReceipt, error) {
	var receipts []chat.MessageReadReceipt
	err := db.Where("message_id = ?", messageID).Order("read_at ASC").Find(&receipts).Error
	return receipts, err
}

func orderByPosition(tx *gorm.DB) *gorm.DB {
	return tx.Order("position ASC")
}
