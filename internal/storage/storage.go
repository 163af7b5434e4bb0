package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var ErrInvalidKey = errors.New("storage: invalid object key")

// BlobStore - хранилище вложений чата. Ключи вида "chats/<chatID>/<uuid>.<ext>".
type BlobStore interface {
	// Put сохраняет объект под ключом
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Delete удаляет объект, отсутствие объекта не ошибка
	Delete(ctx context.Context, key string) error

	// Exists проверяет наличие объекта
	Exists(ctx context.Context, key string) (bool, error)

	// SignedURL возвращает временную ссылку на скачивание
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Config holds storage configuration
type Config struct {
	Type      string // local, s3, cloudflare_r2
	BasePath  string // для local
	BaseURL   string // публичный префикс ссылок для local
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // для R2 или совместимого S3
}

// New создает хранилище по конфигурации
func New(cfg Config) (BlobStore, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStore(cfg)
	case "s3", "cloudflare_r2":
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// CleanKey нормализует ключ и отбрасывает попытки выйти за пределы хранилища
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned != key {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
