package app

import (
	"net/http"
	"time"

	"agency_backend/internal/config"
	"agency_backend/internal/logger"
	"agency_backend/internal/models"
	"agency_backend/internal/notify"
)

// BuildSenders собирает каналы доставки. Выключенный канал заменяется NoopSender.
func BuildSenders(cfg *config.Config) []notify.Sender {
	client := &http.Client{Timeout: cfg.Notifications.ChannelTimeout + 5*time.Second}

	var push notify.Sender = notify.NoopSender{ChannelName: models.ChannelPush}
	if cfg.Push.Enabled {
		push = notify.NewPushSender(cfg.Push.Endpoint, cfg.Push.AccessToken, client)
	}

	var email notify.Sender = notify.NoopSender{ChannelName: models.ChannelEmail}
	switch cfg.Email.Provider {
	case "smtp":
		email = notify.NewEmailSender(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUsername,
			cfg.Email.SMTPPassword, cfg.Email.FromEmail, cfg.Email.FromName)
	case "sendgrid":
		email = notify.NewSendGridSender(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName)
	case "", "none":
	default:
		logger.Warn("Unknown email provider, email channel disabled", "provider", cfg.Email.Provider)
	}

	var telegram notify.Sender = notify.NoopSender{ChannelName: models.ChannelTelegram}
	if cfg.Telegram.Enabled {
		telegram = notify.NewTelegramSender(cfg.Telegram.APIBase, cfg.Telegram.BotToken, client)
	}

	return []notify.Sender{push, email, telegram}
}
