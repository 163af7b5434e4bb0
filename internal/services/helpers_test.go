package services_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"agency_backend/internal/config"
	"agency_backend/internal/models"
	"agency_backend/internal/notify"
	"agency_backend/internal/presence"
	"agency_backend/internal/services"
	"agency_backend/internal/storage"
	"agency_backend/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// harness - сервисный слой поверх in-memory SQLite с фейковыми каналами доставки
type harness struct {
	db       *gorm.DB
	cfg      *config.Config
	svc      *services.ServiceContainer
	hub      *testutil.RecordingBroadcaster
	presence *presence.Registry
	blobs    *storage.LocalStore
	push     *testutil.FakeSender
	email    *testutil.FakeSender
	telegram *testutil.FakeSender
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewTestDB(t)
	cfg := config.Default()
	cfg.Notifications.ChannelTimeout = 2 * time.Second

	blobs, err := storage.NewLocalStore(storage.Config{BasePath: t.TempDir(), BaseURL: "/files"})
	require.NoError(t, err)

	h := &harness{
		db:       db,
		cfg:      cfg,
		hub:      testutil.NewRecordingBroadcaster(),
		presence: presence.NewRegistry(),
		blobs:    blobs,
		push:     testutil.NewFakeSender(models.ChannelPush),
		email:    testutil.NewFakeSender(models.ChannelEmail),
		telegram: testutil.NewFakeSender(models.ChannelTelegram),
	}

	h.svc = services.NewServiceContainer(services.Dependencies{
		Config:      cfg,
		Broadcaster: h.hub,
		Presence:    h.presence,
		Blobs:       blobs,
		Senders:     []notify.Sender{h.push, h.email, h.telegram},
	})
	return h
}

// settle дожидается фоновой обработки сообщений и всех отправок
func (h *harness) settle(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.svc.ChatService.Wait(ctx))
	require.NoError(t, h.svc.NotificationService.Wait(ctx))
}

func (h *harness) online(userID string) {
	h.presence.Register(userID, "conn-"+userID)
}

// sentTo - отправки фейкового канала конкретному пользователю
func sentTo(sender *testutil.FakeSender, userID string) []testutil.SentMessage {
	var out []testutil.SentMessage
	for _, m := range sender.Sent() {
		if m.Target.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

func putBlob(t *testing.T, h *harness, key string) {
	t.Helper()
	require.NoError(t, h.blobs.Put(context.Background(), key, strings.NewReader("data"), 4, "image/png"))
}
