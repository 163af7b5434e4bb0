package contextkeys

// Используем кастомный тип, чтобы избежать коллизий
type contextKey string

const (
	// DBContextKey - *gorm.DB запроса (пул или транзакция)
	DBContextKey = contextKey("db")

	// UserIDKey - ID пользователя после AuthMiddleware
	UserIDKey = contextKey("userID")
)
