package testutil

import (
	"context"
	"sync"

	"agency_backend/internal/notify"
)

// BroadcastCall - одна зафиксированная рассылка
type BroadcastCall struct {
	Kind    string // chat, user, fanout, evict
	ChatID  string
	UserIDs []string
	Event   string
	Data    interface{}
}

// RecordingBroadcaster запоминает все рассылки вместо отправки в сокеты
type RecordingBroadcaster struct {
	mu    sync.Mutex
	calls []BroadcastCall
}

func NewRecordingBroadcaster() *RecordingBroadcaster {
	return &RecordingBroadcaster{}
}

func (b *RecordingBroadcaster) ToChat(chatID, event string, data interface{}) {
	b.record(BroadcastCall{Kind: "chat", ChatID: chatID, Event: event, Data: data})
}

func (b *RecordingBroadcaster) ToUser(userID, event string, data interface{}) {
	b.record(BroadcastCall{Kind: "user", UserIDs: []string{userID}, Event: event, Data: data})
}

func (b *RecordingBroadcaster) Fanout(chatID string, userIDs []string, event string, data interface{}) {
	ids := append([]string(nil), userIDs...)
	b.record(BroadcastCall{Kind: "fanout", ChatID: chatID, UserIDs: ids, Event: event, Data: data})
}

func (b *RecordingBroadcaster) EvictFromChat(chatID, userID string) {
	b.record(BroadcastCall{Kind: "evict", ChatID: chatID, UserIDs: []string{userID}})
}

func (b *RecordingBroadcaster) record(c BroadcastCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
}

// Calls возвращает копию всех вызовов
func (b *RecordingBroadcaster) Calls() []BroadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BroadcastCall(nil), b.calls...)
}

// Events возвращает вызовы с указанным событием
func (b *RecordingBroadcaster) Events(event string) []BroadcastCall {
	var out []BroadcastCall
	for _, c := range b.Calls() {
		if c.Event == event {
			out = append(out, c)
		}
	}
	return out
}

// SentMessage - то, что получил FakeSender
type SentMessage struct {
	Target  notify.Target
	Content notify.Content
}

// FakeSender реализует notify.Sender и запоминает отправки.
// SendFunc позволяет задать ошибку, задержку или свой Result.
type FakeSender struct {
	ChannelName string
	SendFunc    func(ctx context.Context, target notify.Target, content notify.Content) (notify.Result, error)

	mu   sync.Mutex
	sent []SentMessage
}

func NewFakeSender(channel string) *FakeSender {
	return &FakeSender{ChannelName: channel}
}

func (s *FakeSender) Channel() string {
	return s.ChannelName
}

func (s *FakeSender) Send(ctx context.Context, target notify.Target, content notify.Content) (notify.Result, error) {
	s.mu.Lock()
	s.sent = append(s.sent, SentMessage{Target: target, Content: content})
	s.mu.Unlock()

	if s.SendFunc != nil {
		return s.SendFunc(ctx, target, content)
	}
	return notify.Result{}, nil
}

func (s *FakeSender) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.sent...)
}
