package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agency_backend/internal/repositories"
	"agency_backend/pkg/apperrors"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// Claims - токен выпускает внешний сервис аутентификации, здесь только проверка
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// GenerateToken подписывает токен HS256. Используется в тестах и локальной разработке.
func GenerateToken(userID, secret, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken проверяет подпись, срок и издателя
func ParseToken(tokenStr, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}

// Provider превращает учетные данные в id активного пользователя
type Provider interface {
	Authenticate(ctx context.Context, db *gorm.DB, token string) (string, error)
}

type JWTProvider struct {
	secret   string
	issuer   string
	userRepo repositories.UserRepository
}

func NewJWTProvider(secret, issuer string, userRepo repositories.UserRepository) *JWTProvider {
	return &JWTProvider{secret: secret, issuer: issuer, userRepo: userRepo}
}

func (p *JWTProvider) Authenticate(ctx context.Context, db *gorm.DB, token string) (string, error) {
	if token == "" {
		return "", apperrors.ErrInvalidToken
	}

	claims, err := ParseToken(token, p.secret, p.issuer)
	if err != nil {
		return "", apperrors.ErrInvalidToken.WithError(err)
	}

	user, err := p.userRepo.FindByID(db.WithContext(ctx), claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return "", apperrors.ErrInvalidToken
		}
		return "", apperrors.InternalError(fmt.Errorf("load user: %w", err))
	}
	if !user.IsActive {
		return "", apperrors.ErrUserInactive
	}
	return user.ID, nil
}
