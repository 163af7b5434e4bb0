package services_test

import (
	"context"
	"testing"

	"agency_backend/internal/models"
	"agency_backend/internal/models/chat"
	"agency_backend/internal/repositories"
	"agency_backend/internal/services"
	"agency_backend/internal/services/dto"
	"agency_backend/internal/testutil"
	"agency_backend/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTokens(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    []services.MentionToken
	}{
		{"single first name", "hi @Bob!", []services.MentionToken{{First: "bob"}}},
		{"full name", "@Anna Lee please check", []services.MentionToken{{First: "anna", Last: "lee"}}},
		{"email is not a mention", "write to bob@example.com", nil},
		{"duplicates collapse", "@bob, @BOB", []services.MentionToken{{First: "bob"}}},
		{"cyrillic", "привет, @Айгерим", []services.MentionToken{{First: "айгерим"}}},
		{"after punctuation", "(@carol)", []services.MentionToken{{First: "carol"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := services.ExtractTokens(tc.content)
			if len(tc.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMentionService_Resolve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	author := testutil.CreateUser(t, h.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, h.db, "Bob", "Jones")
	annaLee := testutil.CreateUser(t, h.db, "Anna", "Lee")
	testutil.CreateUser(t, h.db, "Anna", "Kim")
	testutil.CreateUser(t, h.db, "Dora", "Gone", testutil.Inactive())
	outsider := testutil.CreateUser(t, h.db, "Zed", "Far")

	resolve := func(content string, scope []string) []string {
		users, err := h.svc.MentionService.Resolve(ctx, h.db, content, author.ID, scope)
		require.NoError(t, err)
		ids := make([]string, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		return ids
	}

	// 1. Уникальное имя
	assert.Equal(t, []string{bob.ID}, resolve("ping @bob", nil))

	// 2. Неоднозначное имя отбрасывается, полное имя - нет
	assert.Empty(t, resolve("ping @anna", nil))
	assert.Equal(t, []string{annaLee.ID}, resolve("ping @Anna Lee", nil))

	// 3. Неактивные и сам автор не упоминаются
	assert.Empty(t, resolve("@dora @alice", nil))

	// 4. Область поиска ограничена участниками
	scope := []string{author.ID, bob.ID}
	assert.Empty(t, resolve("@zed", scope))
	assert.Equal(t, []string{outsider.ID}, resolve("@zed", nil))

	// 5. Пустая область - никого
	assert.Empty(t, resolve("@bob", []string{}))
}

func TestMentionService_AuthorExcludedBeforeAmbiguity(t *testing.T) {
	h := newHarness(t)

	author := testutil.CreateUser(t, h.db, "Sam", "First")
	other := testutil.CreateUser(t, h.db, "Sam", "Second")

	users, err := h.svc.MentionService.Resolve(context.Background(), h.db, "thanks @sam", author.ID, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, other.ID, users[0].ID)
}

func TestMentionService_MatchLeading(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bob := testutil.CreateUser(t, h.db, "Bob", "Jones")
	anna := testutil.CreateUser(t, h.db, "Anna", "Lee")
	scope := []string{bob.ID, anna.ID}

	match, err := h.svc.MentionService.MatchLeading(ctx, h.db, "@Anna Lee sounds good", scope)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, anna.ID, match.User.ID)
	assert.Equal(t, "sounds good", match.Rest)

	match, err = h.svc.MentionService.MatchLeading(ctx, h.db, "  @bob ok", scope)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, bob.ID, match.User.ID)
	assert.Equal(t, "ok", match.Rest)

	match, err = h.svc.MentionService.MatchLeading(ctx, h.db, "ok @bob", scope)
	require.NoError(t, err)
	assert.Nil(t, match)

	match, err = h.svc.MentionService.MatchLeading(ctx, h.db, "@nobody hi", scope)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestMentionService_ProcessComment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	author := testutil.CreateUser(t, h.db, "Alice", "Smith")
	bob := testutil.CreateUser(t, h.db, "Bob", "Jones")
	commentID := uuid.NewString()

	req := &dto.CommentMentionRequest{
		CommentID: commentID,
		TaskTitle: "Q3 report",
		Content:   "@bob please review",
		Link:      "https://app.example.com/tasks/1",
	}

	// 1. Первый вызов создает упоминание и отправляет уведомление
	resp, err := h.svc.MentionService.ProcessComment(ctx, h.db, author.ID, req)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.ID}, resp.MentionedUserIDs)

	h.settle(t)
	sent := sentTo(h.email, bob.ID)
	require.Len(t, sent, 1)
	assert.Equal(t, models.EventMention, sent[0].Content.EventType)
	assert.Equal(t, req.Link, sent[0].Content.Link)

	// 2. Повтор того же комментария не уведомляет еще раз
	resp, err = h.svc.MentionService.ProcessComment(ctx, h.db, author.ID, req)
	require.NoError(t, err)
	assert.Empty(t, resp.MentionedUserIDs)
	h.settle(t)
	assert.Len(t, sentTo(h.email, bob.ID), 1)

	mentions, err := repositories.NewMentionRepository().FindBySource(h.db, chat.MentionSourceComment, commentID)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.True(t, mentions[0].Notified)
}

func TestMentionService_ProcessComment_AuthorLookup(t *testing.T) {
	h := newHarness(t)

	req := &dto.CommentMentionRequest{CommentID: uuid.NewString(), Content: "@bob hi"}

	// 1. Неизвестный автор
	_, err := h.svc.MentionService.ProcessComment(context.Background(), h.db, uuid.NewString(), req)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

	// 2. Сбой базы не выдается за отсутствие пользователя
	author := testutil.CreateUser(t, h.db, "Alice", "Smith")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.svc.MentionService.ProcessComment(ctx, h.db.WithContext(ctx), author.ID, req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrUserNotFound)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternalError))
}
