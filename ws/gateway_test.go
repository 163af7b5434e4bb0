package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agency_backend/internal/auth"
	"agency_backend/internal/config"
	"agency_backend/internal/models"
	"agency_backend/internal/presence"
	"agency_backend/internal/repositories"
	"agency_backend/internal/services"
	"agency_backend/internal/services/dto"
	"agency_backend/internal/storage"
	"agency_backend/internal/testutil"
	"agency_backend/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type gateway struct {
	server   *httptest.Server
	db       *gorm.DB
	cfg      *config.Config
	hub      *Hub
	presence *presence.Registry
	svc      *services.ServiceContainer
}

func newGateway(t *testing.T, tweak func(*Options)) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	cfg := config.Default()
	cfg.JWT.Secret = "ws-secret"

	blobs, err := storage.NewLocalStore(storage.Config{BasePath: t.TempDir()})
	require.NoError(t, err)

	registry := presence.NewRegistry()
	hub := NewHub(registry)
	svc := services.NewServiceContainer(services.Dependencies{
		Config:      cfg,
		Broadcaster: hub,
		Presence:    registry,
		Blobs:       blobs,
	})

	opts := OptionsFromConfig(cfg)
	if tweak != nil {
		tweak(&opts)
	}
	provider := auth.NewJWTProvider(cfg.JWT.Secret, cfg.JWT.Issuer, repositories.NewUserRepository())
	handler := NewWebSocketHandler(hub, svc.ChatService, provider, db, validator.New(), opts)

	router := gin.New()
	router.GET("/ws", handler.ServeWS)
	server := httptest.NewServer(router)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		server.Close()
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer waitCancel()
		_ = svc.ChatService.Wait(waitCtx)
		_ = svc.NotificationService.Wait(waitCtx)
	})

	return &gateway{server: server, db: db, cfg: cfg, hub: hub, presence: registry, svc: svc}
}

func (g *gateway) dial(t *testing.T, user *models.User) *websocket.Conn {
	t.Helper()

	token, err := auth.GenerateToken(user.ID, g.cfg.JWT.Secret, g.cfg.JWT.Issuer, time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws"
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return g.presence.IsOnline(user.ID) }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(outgoingEnvelope{Event: event, Data: data}))
}

// next читает кадры до события с нужным именем
func next(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Event == event {
			return env
		}
	}
}

// silent убеждается, что за короткое время не пришло ни одного кадра
func silent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var env Envelope
	err := conn.ReadJSON(&env)
	assert.Error(t, err, "Неожиданное событие %s", env.Event)
}

func TestGateway_RejectsWithoutToken(t *testing.T) {
	g := newGateway(t, nil)

	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, g.hub.ClientCount())
	assert.Zero(t, g.presence.Count())
}

func TestGateway_MessageDeliveredOncePerConnection(t *testing.T) {
	g := newGateway(t, nil)

	alice := testutil.CreateUser(t, g.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, g.db, "Bob", "Jones")
	c := testutil.CreateChat(t, g.db, false, alice, bob)

	aliceConn := g.dial(t, alice)
	bobConn := g.dial(t, bob)

	// 1. Alice открывает чат: она и в комнате чата, и в личной комнате
	emit(t, aliceConn, EventChatJoin, ChatRef{ChatID: c.ID})
	require.Eventually(t, func() bool { return g.hub.roomSize(chatRoom(c.ID)) == 1 }, time.Second, 10*time.Millisecond)

	// 2. Отправка через сокет
	emit(t, aliceConn, EventMessageSend, dto.SendMessageRequest{ChatID: c.ID, Content: "hello", TempID: "t1"})

	env := next(t, aliceConn, services.EventMessageNew)
	var payload dto.MessageNewEvent
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "hello", payload.Message.Content)
	assert.Equal(t, "t1", payload.TempID)
	silent(t, aliceConn)

	// 3. Bob не открывал чат, но получает событие через личную комнату
	env = next(t, bobConn, services.EventMessageNew)
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, alice.ID, payload.Message.SenderID)
	silent(t, bobConn)
}

func TestGateway_JoinIgnoresNonParticipants(t *testing.T) {
	g := newGateway(t, nil)

	alice := testutil.CreateUser(t, g.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, g.db, "Bob", "Jones")
	eve := testutil.CreateUser(t, g.db, "Eve", "Black")
	c := testutil.CreateChat(t, g.db, false, alice, bob)

	eveConn := g.dial(t, eve)
	emit(t, eveConn, EventChatJoin, ChatRef{ChatID: c.ID})

	// ни ошибки, ни комнаты
	silent(t, eveConn)
	assert.Zero(t, g.hub.roomSize(chatRoom(c.ID)))
}

func TestGateway_ErrorsGoToCaller(t *testing.T) {
	g := newGateway(t, nil)

	alice := testutil.CreateUser(t, g.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, g.db, "Bob", "Jones")
	eve := testutil.CreateUser(t, g.db, "Eve", "Black")
	c := testutil.CreateChat(t, g.db, false, alice, bob)

	aliceConn := g.dial(t, alice)
	eveConn := g.dial(t, eve)

	var payload ErrorPayload

	// 1. Пустое сообщение
	emit(t, aliceConn, EventMessageSend, dto.SendMessageRequest{ChatID: c.ID, Content: " "})
	env := next(t, aliceConn, EventError)
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "VALIDATION_FAILED", payload.Code)
	assert.Equal(t, EventMessageSend, payload.Event)

	// 2. Не участник
	emit(t, eveConn, EventMessageSend, dto.SendMessageRequest{ChatID: c.ID, Content: "hi"})
	env = next(t, eveConn, EventError)
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "FORBIDDEN", payload.Code)

	// 3. Неизвестное событие и недопустимая реакция
	emit(t, aliceConn, "chat:explode", ChatRef{ChatID: c.ID})
	env = next(t, aliceConn, EventError)
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "chat:explode", payload.Event)

	emit(t, aliceConn, EventReactionToggle, ReactionTogglePayload{ChatID: c.ID, MessageID: "m", Emoji: "skull"})
	env = next(t, aliceConn, EventError)
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "VALIDATION_FAILED", payload.Code)

	var count int64
	require.NoError(t, g.db.Table("messages").Count(&count).Error)
	assert.Zero(t, count)
}

func TestGateway_RateLimit(t *testing.T) {
	g := newGateway(t, func(o *Options) {
		o.EventsPerSec = 0.001
		o.EventsBurst = 1
	})

	alice := testutil.CreateUser(t, g.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, g.db, "Bob", "Jones")
	c := testutil.CreateChat(t, g.db, false, alice, bob)
	conn := g.dial(t, alice)

	emit(t, conn, EventTypingStart, ChatRef{ChatID: c.ID})
	emit(t, conn, EventTypingStart, ChatRef{ChatID: c.ID})

	env := next(t, conn, EventError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "LIMIT_EXCEEDED", payload.Code)
}

func TestGateway_DisconnectClearsPresence(t *testing.T) {
	g := newGateway(t, nil)

	alice := testutil.CreateUser(t, g.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, g.db, "Bob", "Jones")
	c := testutil.CreateChat(t, g.db, false, alice, bob)

	first := g.dial(t, alice)
	second := g.dial(t, alice)
	emit(t, first, EventChatJoin, ChatRef{ChatID: c.ID})
	require.Eventually(t, func() bool { return g.hub.roomSize(chatRoom(c.ID)) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, g.presence.Connections(alice.ID))

	// закрытие одного соединения оставляет пользователя онлайн
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return g.presence.Connections(alice.ID) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, g.presence.IsOnline(alice.ID))
	assert.Zero(t, g.hub.roomSize(chatRoom(c.ID)))

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool { return !g.presence.IsOnline(alice.ID) }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_EvictFromChat(t *testing.T) {
	hub := NewHub(presence.NewRegistry())
	c := &Client{id: "c1", userID: "u1", send: make(chan []byte, 4), rooms: map[string]struct{}{}, ctx: context.Background()}
	other := &Client{id: "c2", userID: "u2", send: make(chan []byte, 4), rooms: map[string]struct{}{}, ctx: context.Background()}

	hub.register(c)
	hub.register(other)
	hub.Join(c, "chat-1")
	hub.Join(other, "chat-1")

	hub.EvictFromChat("chat-1", "u1")
	assert.Equal(t, 1, hub.roomSize(chatRoom("chat-1")))

	hub.ToChat("chat-1", "ping", nil)
	assert.Len(t, c.send, 0)
	assert.Len(t, other.send, 1)

	// Fanout: комната чата + личные комнаты, без дублей
	hub.Fanout("chat-1", []string{"u1", "u2"}, "pong", nil)
	assert.Len(t, c.send, 1)
	assert.Len(t, other.send, 2)
}

func TestHub_DropsSlowClient(t *testing.T) {
	registry := presence.NewRegistry()
	hub := NewHub(registry)
	c := &Client{id: "c1", userID: "u1", send: make(chan []byte, 1), rooms: map[string]struct{}{}, ctx: context.Background()}
	hub.register(c)

	hub.ToUser("u1", "a", nil)
	hub.ToUser("u1", "b", nil)

	assert.Zero(t, hub.ClientCount())
	assert.False(t, registry.IsOnline("u1"))
}
