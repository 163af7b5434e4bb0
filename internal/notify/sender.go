// Package notify содержит отправщиков уведомлений во внешние каналы:
// push-шлюз, email (SMTP или SendGrid) и Telegram-бот.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var ErrNoAddress = errors.New("notify: recipient has no address for this channel")

// Target - получатель с адресами во всех каналах
type Target struct {
	UserID         string
	Name           string
	Email          string
	PushToken      string
	TelegramChatID string
}

// Content - содержимое уведомления, общее для всех каналов
type Content struct {
	EventType string
	Title     string
	Body      string
	ChatID    string
	Link      string
}

// Result - ответ канала. MessageRef заполняет только бот, он нужен для ответов.
type Result struct {
	MessageRef string
}

// Sender - один канал доставки. Send должен уважать дедлайн ctx.
type Sender interface {
	Channel() string
	Send(ctx context.Context, target Target, content Content) (Result, error)
}

// NoopSender - канал выключен в конфиге
type NoopSender struct {
	ChannelName string
}

func (s NoopSender) Channel() string {
	return s.ChannelName
}

func (s NoopSender) Send(ctx context.Context, target Target, content Content) (Result, error) {
	return Result{}, nil
}

// postJSON отправляет JSON и возвращает тело ответа. Статус вне 2xx - ошибка.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody, 256))
	}
	return respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
