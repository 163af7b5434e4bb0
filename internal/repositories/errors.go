package repositories

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrChatNotFound         = errors.New("chat not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrParticipantExists    = errors.New("user is already a participant of this chat")
	ErrUserNotFound         = errors.New("user not found")
	ErrReplyMappingNotFound = errors.New("reply mapping not found")
)

// isUniqueViolation распознает нарушение уникального индекса.
// С TranslateError gorm сам отдает ErrDuplicatedKey, pgconn-ветка нужна для сырых запросов.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}
