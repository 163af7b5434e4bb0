package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	log *slog.Logger
	mu  sync.Mutex
)

// Init инициализирует глобальный логгер
// env: "development" или "production"; level: debug|info|warn|error (пусто = по env)
func Init(env, level string) {
	InitWithWriter(os.Stdout, env, level)
}

// InitWithWriter - то же, что Init, но с произвольным writer (тесты пишут в буфер)
func InitWithWriter(w io.Writer, env, level string) {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{
		Level:     parseLevel(env, level),
		AddSource: true,
	}

	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		// Production: JSON формат для парсинга
		handler = slog.NewJSONHandler(w, opts)
	}

	log = slog.New(handler)
	slog.SetDefault(log)
}

func parseLevel(env, level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if env == "development" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// GetLogger возвращает глобальный логгер
func GetLogger() *slog.Logger {
	if log == nil {
		// Fallback если Init не вызван
		Init("development", "")
	}
	return log
}

func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}

// Fatal логирует fatal ошибку и завершает программу
func Fatal(msg string, args ...any) {
	GetLogger().Error(msg, args...)
	os.Exit(1)
}

// With создает новый логгер с дополнительными полями
func With(args ...any) *slog.Logger {
	return GetLogger().With(args...)
}

// WithError создает логгер с полем error
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}

// WorkerLog логирует операцию фонового воркера
func WorkerLog(worker, operation string, err error, args ...any) {
	fields := append([]any{"worker", worker, "operation", operation}, args...)

	if err != nil {
		fields = append(fields, "error", err.Error())
		GetLogger().Error("worker operation failed", fields...)
	} else {
		GetLogger().Info("worker operation completed", fields...)
	}
}

// DeliveryLog логирует попытку отправки уведомления по одному каналу
func DeliveryLog(channel, userID string, duration time.Duration, err error) {
	fields := []any{
		"channel", channel,
		"recipient_id", userID,
		"duration_ms", duration.Milliseconds(),
	}

	if err != nil {
		fields = append(fields, "error", err.Error())
		GetLogger().Warn("notification delivery failed", fields...)
	} else {
		GetLogger().Debug("notification delivered", fields...)
	}
}
