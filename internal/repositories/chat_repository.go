package repositories

import (
	"errors"
	"time"

	"agency_backend/internal/models/chat"

	"gorm.io/gorm"
)

type ChatRepository interface {
	// Chat operations
	CreateChat(db *gorm.DB, c *chat.Chat) error
	FindChatByID(db *gorm.DB, id string) (*chat.Chat, error)
	FindDirectChatBetween(db *gorm.DB, userA, userB string) (*chat.Chat, error)
	FindUserChats(db *gorm.DB, userID string) ([]chat.Chat, error)
	TouchChat(db *gorm.DB, chatID string, at time.Time) error
	DeleteChat(db *gorm.DB, chatID string) error

	// Participant operations
	AddParticipant(db *gorm.DB, p *chat.ChatParticipant) error
	FindParticipant(db *gorm.DB, chatID, userID string) (*chat.ChatParticipant, error)
	FindParticipantIDs(db *gorm.DB, chatID string) ([]string, error)
	CountParticipants(db *gorm.DB, chatID string) (int64, error)
	RemoveParticipant(db *gorm.DB, chatID, userID string) error
	IsParticipant(db *gorm.DB, chatID, userID string) (bool, error)
	AdvanceLastRead(db *gorm.DB, chatID, userID string, at time.Time) (bool, error)

	// Unread
	GetUnreadCounts(db *gorm.DB, userID string) (map[string]int64, error)
}

type ChatRepositoryImpl struct{}

func NewChatRepository() ChatRepository {
	return &ChatRepositoryImpl{}
}

type unreadRow struct {
	ChatID string
	Unread int64
}

// --- Chat operations ---

func (r *ChatRepositoryImpl) CreateChat(db *gorm.DB, c *chat.Chat) error {
	return db.Create(c).Error
}

func (r *ChatRepositoryImpl) FindChatByID(db *gorm.DB, id string) (*chat.Chat, error) {
	var c chat.Chat
	err := db.Preload("Participants", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("joined_at ASC")
	}).First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return &c, nil
}

// FindDirectChatBetween ищет личный чат, где участвуют оба пользователя
func (r *ChatRepositoryImpl) FindDirectChatBetween(db *gorm.DB, userA, userB string) (*chat.Chat, error) {
	withA := db.Model(&chat.ChatParticipant{}).Select("chat_id").Where("user_id = ?", userA)
	withB := db.Model(&chat.ChatParticipant{}).Select("chat_id").Where("user_id = ?", userB)

	var c chat.Chat
	err := db.Preload("Participants").
		Where("is_group = ?", false).
		Where("id IN (?)", withA).
		Where("id IN (?)", withB).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ChatRepositoryImpl) FindUserChats(db *gorm.DB, userID string) ([]chat.Chat, error) {
	var chats []chat.Chat
	err := db.Preload("Participants").
		Joins("JOIN chat_participants cp ON cp.chat_id = chats.id AND cp.user_id = ?", userID).
		Order("chats.updated_at DESC").
		Find(&chats).Error
	return chats, err
}

func (r *ChatRepositoryImpl) TouchChat(db *gorm.DB, chatID string, at time.Time) error {
	return db.Model(&chat.Chat{}).Where("id = ?", chatID).UpdateColumn("updated_at", at).Error
}

// DeleteChat удаляет чат вместе со всем содержимым. Порядок важен для внешних ключей.
func (r *ChatRepositoryImpl) DeleteChat(db *gorm.DB, chatID string) error {
	messageIDs := db.Model(&chat.Message{}).Select("id").Where("chat_id = ?", chatID)

	if err := db.Where("message_id IN (?)", messageIDs).Delete(&chat.MessageReaction{}).Error; err != nil {
		return err
	}
	if err := db.Where("message_id IN (?)", messageIDs).Delete(&chat.MessageReadReceipt{}).Error; err != nil {
		return err
	}
	if err := db.Where("message_id IN (?)", messageIDs).Delete(&chat.MessageAttachment{}).Error; err != nil {
		return err
	}
	if err := db.Where("source_type = ? AND source_id IN (?)", chat.MentionSourceMessage, messageIDs).
		Delete(&chat.Mention{}).Error; err != nil {
		return err
	}
	if err := db.Where("chat_id = ?", chatID).Delete(&chat.Message{}).Error; err != nil {
		return err
	}
	if err := db.Where("chat_id = ?", chatID).Delete(&chat.ChatParticipant{}).Error; err != nil {
		return err
	}
	result := db.Where("id = ?", chatID).Delete(&chat.Chat{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

// --- Participant operations ---

func (r *ChatRepositoryImpl) AddParticipant(db *gorm.DB, p *chat.ChatParticipant) error {
	if err := db.Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrParticipantExists
		}
		return err
	}
	return nil
}

func (r *ChatRepositoryImpl) FindParticipant(db *gorm.DB, chatID, userID string) (*chat.ChatParticipant, error) {
	var p chat.ChatParticipant
	err := db.Where("chat_id = ? AND user_id = ?", chatID, userID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *ChatRepositoryImpl) FindParticipantIDs(db *gorm.DB, chatID string) ([]string, error) {
	var ids []string
	err := db.Model(&chat.ChatParticipant{}).
		Where("chat_id = ?", chatID).
		Order("joined_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *ChatRepositoryImpl) CountParticipants(db *gorm.DB, chatID string) (int64, error) {
	var count int64
	err := db.Model(&chat.ChatParticipant{}).Where("chat_id = ?", chatID).Count(&count).Error
	return count, err
}

func (r *ChatRepositoryImpl) RemoveParticipant(db *gorm.DB, chatID, userID string) error {
	result := db.Where("chat_id = ? AND user_id = ?", chatID, userID).Delete(&chat.ChatParticipant{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

func (r *ChatRepositoryImpl) IsParticipant(db *gorm.DB, chatID, userID string) (bool, error) {
	var count int64
	err := db.Model(&chat.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count > 0, err
}

// AdvanceLastRead сдвигает last_read_at только вперед. false - значение не изменилось.
func (r *ChatRepositoryImpl) AdvanceLastRead(db *gorm.DB, chatID, userID string, at time.Time) (bool, error) {
	result := db.Model(&chat.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ? AND last_read_at < ?", chatID, userID, at).
		UpdateColumn("last_read_at", at)
	return result.RowsAffected > 0, result.Error
}

// --- Unread ---

// GetUnreadCounts считает непрочитанные по всем чатам пользователя одним запросом.
// Порог last_read_at берется из строки участника в JOIN, без цепочки OR по чатам.
func (r *ChatRepositoryImpl) GetUnreadCounts(db *gorm.DB, userID string) (map[string]int64, error) {
	var rows []unreadRow
	err := db.Table("chat_participants AS cp").
		Select("cp.chat_id AS chat_id, COUNT(m.id) AS unread").
		Joins("LEFT JOIN messages m ON m.chat_id = cp.chat_id AND m.sender_id <> cp.user_id AND m.created_at > cp.last_read_at").
		Where("cp.user_id = ?", userID).
		Group("cp.chat_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ChatID] = row.Unread
	}
	return counts, nil
}
