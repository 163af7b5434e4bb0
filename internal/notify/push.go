package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/valyala/fastjson"
)

// PushSender шлет push через HTTP-шлюз в формате Expo
type PushSender struct {
	endpoint    string
	accessToken string
	client      *http.Client
	parsers     fastjson.ParserPool
}

func NewPushSender(endpoint, accessToken string, client *http.Client) *PushSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &PushSender{endpoint: endpoint, accessToken: accessToken, client: client}
}

func (s *PushSender) Channel() string {
	return "push"
}

type pushMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Sound string            `json:"sound"`
	Data  map[string]string `json:"data,omitempty"`
}

func (s *PushSender) Send(ctx context.Context, target Target, content Content) (Result, error) {
	if target.PushToken == "" {
		return Result{}, ErrNoAddress
	}

	msg := pushMessage{
		To:    target.PushToken,
		Title: content.Title,
		Body:  content.Body,
		Sound: "default",
		Data: map[string]string{
			"type":    content.EventType,
			"chat_id": content.ChatID,
		},
	}

	headers := map[string]string{}
	if s.accessToken != "" {
		headers["Authorization"] = "Bearer " + s.accessToken
	}

	body, err := postJSON(ctx, s.client, s.endpoint, headers, []pushMessage{msg})
	if err != nil {
		return Result{}, err
	}

	// {"data":[{"status":"ok","id":"..."}]} либо {"data":[{"status":"error","message":"..."}]}
	p := s.parsers.Get()
	defer s.parsers.Put(p)
	v, err := p.ParseBytes(body)
	if err != nil {
		return Result{}, fmt.Errorf("push gateway returned malformed JSON: %w", err)
	}
	tickets := v.GetArray("data")
	if len(tickets) == 0 {
		return Result{}, fmt.Errorf("push gateway returned no tickets")
	}
	ticket := tickets[0]
	if status := string(ticket.GetStringBytes("status")); status != "ok" {
		return Result{}, fmt.Errorf("push rejected: %s", ticket.GetStringBytes("message"))
	}
	return Result{MessageRef: string(ticket.GetStringBytes("id"))}, nil
}
