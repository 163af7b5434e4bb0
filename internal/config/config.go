package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	Env             string        `yaml:"env" env:"SERVER_ENV"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS" envSeparator:","`
}

type DatabaseConfig struct {
	DSN          string        `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns int           `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLife  time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate  bool          `yaml:"auto_migrate" env:"DATABASE_AUTO_MIGRATE"`
}

type JWTConfig struct {
	Secret string `yaml:"secret" env:"JWT_SECRET"`
	Issuer string `yaml:"issuer" env:"JWT_ISSUER"`
}

type StorageConfig struct {
	Type       string        `yaml:"type" env:"STORAGE_TYPE"` // local, s3, cloudflare_r2
	BasePath   string        `yaml:"base_path"`               // для local
	BaseURL    string        `yaml:"base_url"`
	Bucket     string        `yaml:"bucket" env:"STORAGE_BUCKET"`
	Region     string        `yaml:"region" env:"STORAGE_REGION"`
	AccessKey  string        `yaml:"access_key" env:"STORAGE_ACCESS_KEY"`
	SecretKey  string        `yaml:"secret_key" env:"STORAGE_SECRET_KEY"`
	Endpoint   string        `yaml:"endpoint" env:"STORAGE_ENDPOINT"`
	SignedTTL  time.Duration `yaml:"signed_url_ttl"`
	PublicRead bool          `yaml:"public_read"`
}

type UploadConfig struct {
	MaxSize      int64    `yaml:"max_size"`
	AllowedTypes []string `yaml:"allowed_types"`
}

type EmailConfig struct {
	Provider       string `yaml:"provider" env:"EMAIL_PROVIDER"` // smtp, sendgrid, none
	SMTPHost       string `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort       int    `yaml:"smtp_port" env:"SMTP_PORT"`
	SMTPUsername   string `yaml:"smtp_user" env:"SMTP_USER"`
	SMTPPassword   string `yaml:"smtp_password" env:"SMTP_PASSWORD"`
	SendGridAPIKey string `yaml:"sendgrid_api_key" env:"SENDGRID_API_KEY"`
	FromEmail      string `yaml:"from_email" env:"EMAIL_FROM"`
	FromName       string `yaml:"from_name"`
	AppURL         string `yaml:"app_url" env:"APP_URL"`
}

type PushConfig struct {
	Enabled     bool   `yaml:"enabled" env:"PUSH_ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"PUSH_ENDPOINT"`
	AccessToken string `yaml:"access_token" env:"PUSH_ACCESS_TOKEN"`
}

type TelegramConfig struct {
	Enabled       bool   `yaml:"enabled" env:"TELEGRAM_ENABLED"`
	BotToken      string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	APIBase       string `yaml:"api_base"`
	WebhookSecret string `yaml:"webhook_secret" env:"TELEGRAM_WEBHOOK_SECRET"`
}

type NotificationsConfig struct {
	ChannelTimeout time.Duration `yaml:"channel_timeout" env:"NOTIFY_CHANNEL_TIMEOUT"`
	// Defaults[channel] - значение, если пользователь не задал предпочтение
	Defaults map[string]bool `yaml:"defaults"`
}

type ChatConfig struct {
	MaxContentLength  int `yaml:"max_content_length"`
	HistoryWindowDays int `yaml:"history_window_days"`
	DefaultPageSize   int `yaml:"default_page_size"`
}

type ReplyBridgeConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"` // cron выражение
}

type WebSocketConfig struct {
	SendBuffer     int           `yaml:"send_buffer"`
	EventsPerSec   float64       `yaml:"events_per_second"`
	EventsBurst    int           `yaml:"events_burst"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongWait       time.Duration `yaml:"pong_wait"`
	WriteWait      time.Duration `yaml:"write_wait"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	JWT           JWTConfig           `yaml:"jwt"`
	Storage       StorageConfig       `yaml:"storage"`
	Upload        UploadConfig        `yaml:"upload"`
	Email         EmailConfig         `yaml:"email"`
	Push          PushConfig          `yaml:"push"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Chat          ChatConfig          `yaml:"chat"`
	ReplyBridge   ReplyBridgeConfig   `yaml:"reply_bridge"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
}

// Default возвращает конфигурацию со всеми значениями по умолчанию
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 4000
	cfg.Server.Env = "development"
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.Database.MaxOpenConns = 25
	cfg.Database.MaxIdleConns = 5
	cfg.Database.ConnMaxLife = time.Hour

	cfg.JWT.Issuer = "agency"

	cfg.Storage.Type = "local"
	cfg.Storage.BasePath = "./uploads"
	cfg.Storage.BaseURL = "/files"
	cfg.Storage.SignedTTL = 15 * time.Minute

	cfg.Upload.MaxSize = 20 * 1024 * 1024 // 20MB
	cfg.Upload.AllowedTypes = []string{
		"image/jpeg", "image/png", "image/gif", "image/webp",
		"video/mp4", "application/pdf", "text/plain",
	}

	cfg.Email.Provider = "none"
	cfg.Email.SMTPPort = 587
	cfg.Email.FromName = "Agency"

	cfg.Push.Endpoint = "https://exp.host/--/api/v2/push/send"
	cfg.Telegram.APIBase = "https://api.telegram.org"

	cfg.Notifications.ChannelTimeout = 10 * time.Second
	cfg.Notifications.Defaults = map[string]bool{
		"push":     true,
		"email":    true,
		"telegram": true,
	}

	cfg.Chat.MaxContentLength = 4000
	cfg.Chat.HistoryWindowDays = 365
	cfg.Chat.DefaultPageSize = 50

	cfg.ReplyBridge.TTL = 30 * 24 * time.Hour
	cfg.ReplyBridge.SweepSchedule = "17 */6 * * *"

	cfg.WebSocket.SendBuffer = 256
	cfg.WebSocket.EventsPerSec = 20
	cfg.WebSocket.EventsBurst = 40
	cfg.WebSocket.PingInterval = 30 * time.Second
	cfg.WebSocket.PongWait = 60 * time.Second
	cfg.WebSocket.WriteWait = 10 * time.Second
	cfg.WebSocket.MaxMessageSize = 64 * 1024

	return cfg
}

// Load читает .env, затем yaml-файл (если есть), затем переменные окружения.
// Переменные окружения имеют приоритет над файлом.
func Load(path string) (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/config.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file at %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// работаем только на переменных окружения
	default:
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.url (DATABASE_URL) is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret (JWT_SECRET) is required")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required when telegram is enabled")
	}
	if c.ReplyBridge.TTL <= 0 {
		return errors.New("reply_bridge.ttl must be positive")
	}
	if c.Notifications.ChannelTimeout <= 0 {
		return errors.New("notifications.channel_timeout must be positive")
	}
	return nil
}

// Address возвращает адрес для http.Server
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
