package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agency_backend/internal/auth"
	"agency_backend/internal/config"
	"agency_backend/internal/handlers"
	"agency_backend/internal/middleware"
	"agency_backend/internal/models"
	"agency_backend/internal/models/chat"
	"agency_backend/internal/presence"
	"agency_backend/internal/repositories"
	"agency_backend/internal/services"
	"agency_backend/internal/services/dto"
	"agency_backend/internal/storage"
	"agency_backend/internal/testutil"
	"agency_backend/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const webhookSecret = "hook-secret"

type api struct {
	router *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	svc    *services.ServiceContainer
	hub    *testutil.RecordingBroadcaster
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	cfg := config.Default()
	cfg.JWT.Secret = "handler-secret"

	blobs, err := storage.NewLocalStore(storage.Config{BasePath: t.TempDir(), BaseURL: "/files"})
	require.NoError(t, err)

	hub := testutil.NewRecordingBroadcaster()
	svc := services.NewServiceContainer(services.Dependencies{
		Config:      cfg,
		Broadcaster: hub,
		Presence:    presence.NewRegistry(),
		Blobs:       blobs,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.ChatService.Wait(ctx)
		_ = svc.NotificationService.Wait(ctx)
	})

	provider := auth.NewJWTProvider(cfg.JWT.Secret, cfg.JWT.Issuer, repositories.NewUserRepository())
	appHandlers := handlers.NewAppHandlers(validator.New(), svc, webhookSecret)

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware(), middleware.DBMiddleware(db))
	v1 := router.Group("/api/v1")
	appHandlers.ChatHandler.RegisterRoutes(v1, middleware.AuthMiddleware(provider))
	appHandlers.MentionHandler.RegisterRoutes(v1, middleware.AuthMiddleware(provider))
	appHandlers.TelegramWebhookHandler.RegisterRoutes(v1)
	router.GET("/healthz", appHandlers.HealthHandler.Healthz)

	return &api{router: router, db: db, cfg: cfg, svc: svc, hub: hub}
}

func (a *api) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := auth.GenerateToken(user.ID, a.cfg.JWT.Secret, a.cfg.JWT.Issuer, time.Hour)
	require.NoError(t, err)
	return token
}

func (a *api) do(t *testing.T, method, path string, user *models.User, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+a.token(t, user))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestChatHandler_RequiresAuth(t *testing.T) {
	a := newAPI(t)

	w := a.do(t, http.MethodGet, "/api/v1/chats", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/chats", nil, nil, "Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChatHandler_ConversationFlow(t *testing.T) {
	a := newAPI(t)
	alice := testutil.CreateUser(t, a.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, a.db, "Bob", "Jones")

	// 1. Создание группового чата
	w := a.do(t, http.MethodPost, "/api/v1/chats", alice, map[string]interface{}{
		"isGroup":        true,
		"name":           "Shoot",
		"participantIds": []string{bob.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created dto.ChatResponse
	decode(t, w, &created)
	assert.True(t, created.IsGroup)
	assert.Len(t, created.Participants, 2)

	// 2. Сообщение: chatId берется из пути, а не из тела
	w = a.do(t, http.MethodPost, "/api/v1/chats/"+created.ID+"/messages", alice, map[string]string{
		"chatId":  "something-else",
		"content": "hello @bob",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sent dto.MessageResponse
	decode(t, w, &sent)
	assert.Equal(t, created.ID, sent.ChatID)
	assert.Equal(t, "hello @bob", sent.Content)

	// 3. У Bob одно непрочитанное
	w = a.do(t, http.MethodGet, "/api/v1/chats/unread", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary dto.UnreadSummary
	decode(t, w, &summary)
	assert.Equal(t, int64(1), summary.Total)
	assert.Equal(t, int64(1), summary.Chats[created.ID])

	// 4. История
	w = a.do(t, http.MethodGet, "/api/v1/chats/"+created.ID+"/messages?limit=10", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page dto.MessagePage
	decode(t, w, &page)
	require.Len(t, page.Messages, 1)
	assert.False(t, page.HasMore)

	// 5. Реакция ставится и снимается
	reactionPath := "/api/v1/chats/" + created.ID + "/messages/" + sent.ID + "/reactions"
	w = a.do(t, http.MethodPost, reactionPath, bob, map[string]string{"emoji": chat.EmojiThumbsUp})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reaction dto.ReactionUpdatedEvent
	decode(t, w, &reaction)
	assert.Equal(t, "added", reaction.Action)

	w = a.do(t, http.MethodPost, reactionPath, bob, map[string]string{"emoji": chat.EmojiThumbsUp})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &reaction)
	assert.Equal(t, "removed", reaction.Action)
	assert.Empty(t, reaction.Reactions)

	// 6. Прочтение без тела помечает все
	w = a.do(t, http.MethodPost, "/api/v1/chats/"+created.ID+"/read", bob, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/chats/unread", bob, nil)
	decode(t, w, &summary)
	assert.Zero(t, summary.Total)
}

func TestChatHandler_Errors(t *testing.T) {
	a := newAPI(t)
	alice := testutil.CreateUser(t, a.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, a.db, "Bob", "Jones")
	mallory := testutil.CreateUser(t, a.db, "Mallory", "Evil")
	c := testutil.CreateChat(t, a.db, false, alice, bob)

	tests := []struct {
		name     string
		method   string
		path     string
		user     *models.User
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{
			name:     "Пустой список участников",
			method:   http.MethodPost,
			path:     "/api/v1/chats",
			user:     alice,
			body:     map[string]interface{}{"participantIds": []string{}},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_FAILED",
		},
		{
			name:     "Битый JSON",
			method:   http.MethodPost,
			path:     "/api/v1/chats/" + c.ID + "/messages",
			user:     alice,
			body:     "{not json",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "Чужой чат",
			method:   http.MethodGet,
			path:     "/api/v1/chats/" + c.ID,
			user:     mallory,
			wantCode: http.StatusForbidden,
			wantErr:  "FORBIDDEN",
		},
		{
			name:     "Пустое сообщение",
			method:   http.MethodPost,
			path:     "/api/v1/chats/" + c.ID + "/messages",
			user:     alice,
			body:     map[string]string{"content": "   "},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "Недопустимый эмодзи",
			method:   http.MethodPost,
			path:     "/api/v1/chats/" + c.ID + "/messages/x/reactions",
			user:     alice,
			body:     map[string]string{"emoji": "skull"},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_FAILED",
		},
		{
			name:     "Вложение без файла",
			method:   http.MethodPost,
			path:     "/api/v1/chats/" + c.ID + "/attachments",
			user:     alice,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Contains(t, w.Body.String(), tt.wantErr)
			}
		})
	}
}

func TestChatHandler_Participants(t *testing.T) {
	a := newAPI(t)
	alice := testutil.CreateUser(t, a.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, a.db, "Bob", "Jones")
	carol := testutil.CreateUser(t, a.db, "Carol", "White")
	c := testutil.CreateChat(t, a.db, true, alice, bob)

	w := a.do(t, http.MethodPost, "/api/v1/chats/"+c.ID+"/participants", alice, map[string]string{"userId": carol.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var participant dto.ParticipantResponse
	decode(t, w, &participant)
	assert.Equal(t, carol.ID, participant.UserID)

	// Bob не может удалить Carol
	w = a.do(t, http.MethodDelete, "/api/v1/chats/"+c.ID+"/participants/"+carol.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Carol выходит сама
	w = a.do(t, http.MethodDelete, "/api/v1/chats/"+c.ID+"/participants/"+carol.ID, carol, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/chats/"+c.ID, carol, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMentionHandler_ProcessComment(t *testing.T) {
	a := newAPI(t)
	alice := testutil.CreateUser(t, a.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, a.db, "Bob", "Jones")

	body := map[string]string{
		"commentId": "2f4e1d6c-8a1b-4c3d-9e0f-1a2b3c4d5e6f",
		"taskTitle": "Casting brief",
		"content":   "@bob check this",
	}

	w := a.do(t, http.MethodPost, "/api/v1/mentions/comments", alice, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.CommentMentionResponse
	decode(t, w, &resp)
	assert.Equal(t, []string{bob.ID}, resp.MentionedUserIDs)

	body["commentId"] = "not-a-uuid"
	w = a.do(t, http.MethodPost, "/api/v1/mentions/comments", alice, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func telegramUpdate(chatID, replyTo int64, text string) string {
	update := map[string]interface{}{
		"update_id": 1,
		"message": map[string]interface{}{
			"message_id": 99,
			"chat":       map[string]interface{}{"id": chatID},
			"text":       text,
		},
	}
	if replyTo != 0 {
		update["message"].(map[string]interface{})["reply_to_message"] = map[string]interface{}{"message_id": replyTo}
	}
	raw, _ := json.Marshal(update)
	return string(raw)
}

func TestTelegramWebhook(t *testing.T) {
	a := newAPI(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, a.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, a.db, "Bob", "Jones", testutil.WithTelegram("555"))
	c := testutil.CreateChat(t, a.db, false, alice, bob)

	require.NoError(t, a.svc.ReplyBridgeService.Register(ctx, a.db, "555:7", c.ID, bob.ID, alice.ID))

	path := "/api/v1/integrations/telegram/webhook"

	t.Run("Неверный секрет", func(t *testing.T) {
		w := a.do(t, http.MethodPost, path, nil, telegramUpdate(555, 7, "hi"), "X-Telegram-Bot-Api-Secret-Token", "wrong")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Битый JSON", func(t *testing.T) {
		w := a.do(t, http.MethodPost, path, nil, "{", "X-Telegram-Bot-Api-Secret-Token", webhookSecret)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Не ответ", func(t *testing.T) {
		w := a.do(t, http.MethodPost, path, nil, telegramUpdate(555, 0, "hi"), "X-Telegram-Bot-Api-Secret-Token", webhookSecret)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"posted":false`)
	})

	t.Run("Неизвестная связь", func(t *testing.T) {
		w := a.do(t, http.MethodPost, path, nil, telegramUpdate(555, 8, "hi"), "X-Telegram-Bot-Api-Secret-Token", webhookSecret)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"posted":false`)
	})

	t.Run("Ответ публикуется в чат", func(t *testing.T) {
		w := a.do(t, http.MethodPost, path, nil, telegramUpdate(555, 7, "on it"), "X-Telegram-Bot-Api-Secret-Token", webhookSecret)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"posted":true`)

		var msg chat.Message
		require.NoError(t, a.db.Where("chat_id = ?", c.ID).Order("created_at desc").First(&msg).Error)
		assert.Equal(t, bob.ID, msg.SenderID)
		assert.Equal(t, "@Alice Smith on it", msg.Content)
	})
}

func TestHealthz(t *testing.T) {
	a := newAPI(t)

	w := a.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "ok"))
}
