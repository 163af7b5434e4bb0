package middleware

import (
	"errors"
	"strings"

	"agency_backend/internal/auth"
	"agency_backend/internal/logger"
	"agency_backend/pkg/apperrors"
	"agency_backend/pkg/contextkeys"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var errDBMissing = errors.New("database is not set in request context")

// BearerToken достает токен из заголовка Authorization или параметра ?token= (для websocket)
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return c.Query("token")
}

// AuthMiddleware - middleware проверки JWT. Должен идти после DBMiddleware.
func AuthMiddleware(provider auth.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Authorization header missing or invalid"))
			return
		}

		db, ok := c.Get(string(contextkeys.DBContextKey))
		if !ok {
			apperrors.HandleError(c, apperrors.InternalError(errDBMissing))
			return
		}
		userID, err := provider.Authenticate(c.Request.Context(), db.(*gorm.DB), token)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.Set(string(contextkeys.UserIDKey), userID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}
