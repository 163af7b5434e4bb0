package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
)

// TelegramSender отправляет сообщение ботом с force_reply,
// чтобы ответ пользователя пришел в webhook как reply.
type TelegramSender struct {
	apiBase  string
	botToken string
	client   *http.Client
	parsers  fastjson.ParserPool
}

func NewTelegramSender(apiBase, botToken string, client *http.Client) *TelegramSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &TelegramSender{
		apiBase:  strings.TrimRight(apiBase, "/"),
		botToken: botToken,
		client:   client,
	}
}

func (s *TelegramSender) Channel() string {
	return "telegram"
}

type telegramReplyMarkup struct {
	ForceReply bool `json:"force_reply"`
}

type telegramSendMessage struct {
	ChatID      string              `json:"chat_id"`
	Text        string              `json:"text"`
	ReplyMarkup telegramReplyMarkup `json:"reply_markup"`
}

func (s *TelegramSender) Send(ctx context.Context, target Target, content Content) (Result, error) {
	if target.TelegramChatID == "" {
		return Result{}, ErrNoAddress
	}

	text := content.Body
	if content.Title != "" {
		text = content.Title + "\n\n" + content.Body
	}
	if content.Link != "" {
		text += "\n\n" + content.Link
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	body, err := postJSON(ctx, s.client, url, nil, telegramSendMessage{
		ChatID:      target.TelegramChatID,
		Text:        text,
		ReplyMarkup: telegramReplyMarkup{ForceReply: true},
	})
	if err != nil {
		return Result{}, err
	}

	p := s.parsers.Get()
	defer s.parsers.Put(p)
	v, err := p.ParseBytes(body)
	if err != nil {
		return Result{}, fmt.Errorf("telegram returned malformed JSON: %w", err)
	}
	if !v.GetBool("ok") {
		return Result{}, fmt.Errorf("telegram error: %s", v.GetStringBytes("description"))
	}
	messageID := v.GetInt64("result", "message_id")
	if messageID == 0 {
		return Result{}, fmt.Errorf("telegram response has no message_id")
	}

	return Result{MessageRef: TelegramRef(target.TelegramChatID, messageID)}, nil
}

// TelegramRef - ключ исходящего сообщения бота: "<chat_id>:<message_id>"
func TelegramRef(chatID string, messageID int64) string {
	return chatID + ":" + strconv.FormatInt(messageID, 10)
}
