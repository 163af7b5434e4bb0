package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalStore хранит файлы на диске. Подходит для разработки и тестов.
type LocalStore struct {
	basePath string
	baseURL  string
	now      func() time.Time
}

func NewLocalStore(cfg Config) (*LocalStore, error) {
	if cfg.BasePath == "" {
		cfg.BasePath = "./uploads"
	}
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "/files"
	}

	return &LocalStore{
		basePath: cfg.BasePath,
		baseURL:  baseURL,
		now:      time.Now,
	}, nil
}

func (s *LocalStore) fullPath(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleaned)), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		_ = os.Remove(fullPath)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SignedURL для локального диска не подписывается, срок передается параметром expires
func (s *LocalStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(ttl).Unix()
	return fmt.Sprintf("%s/%s?expires=%s", s.baseURL, (&url.URL{Path: cleaned}).EscapedPath(), strconv.FormatInt(expires, 10)), nil
}
