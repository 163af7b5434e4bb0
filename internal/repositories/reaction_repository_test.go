package repositories

import (
	"testing"
	"time"

	"agency_backend/internal/models/chat"
	"agency_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupReaction(t *testing.T) (*gorm.DB, *ReactionRepositoryImpl, string, string) {
	t.Helper()

	db := testutil.NewTestDB(t)
	alice := testutil.CreateUser(t, db, "Alice", "Smith")
	bob := testutil.CreateUser(t, db, "Bob", "Jones")
	c := testutil.CreateChat(t, db, false, alice, bob)
	msg := testutil.CreateMessage(t, db, c.ID, alice.ID, "hi", time.Now())
	return db, &ReactionRepositoryImpl{}, msg.ID, bob.ID
}

func countReactions(t *testing.T, db *gorm.DB, messageID string) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(&chat.MessageReaction{}).Where("message_id = ?", messageID).Count(&n).Error)
	return n
}

func TestReactionRepository_AddTwice(t *testing.T) {
	db, repo, msgID, userID := setupReaction(t)

	added, err := repo.Add(db, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)
	assert.True(t, added)

	// Повтор упирается в уникальный индекс и ничего не вставляет
	added, err = repo.Add(db, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, int64(1), countReactions(t, db, msgID))
}

func TestReactionRepository_RemoveTwice(t *testing.T) {
	db, repo, msgID, userID := setupReaction(t)

	_, err := repo.Add(db, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)

	removed, err := repo.Remove(db, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Remove(db, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Zero(t, countReactions(t, db, msgID))
}

func TestReactionRepository_ToggleRowVanishedAfterRead(t *testing.T) {
	db, repo, msgID, userID := setupReaction(t)

	_, err := repo.Add(db, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)

	exists, err := repo.Exists(db, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)
	require.True(t, exists)

	// Параллельный запрос удалил строку после чтения
	_, err = repo.Remove(db, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)

	action, err := repo.toggleFrom(db, exists, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)
	assert.Equal(t, ReactionRemoved, action)
	assert.Zero(t, countReactions(t, db, msgID))
}

func TestReactionRepository_ToggleRowAppearedAfterRead(t *testing.T) {
	db, repo, msgID, userID := setupReaction(t)

	exists, err := repo.Exists(db, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)
	require.False(t, exists)

	// Параллельный запрос успел вставить ту же реакцию
	_, err = repo.Add(db, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)

	action, err := repo.toggleFrom(db, exists, msgID, userID, chat.EmojiHeart)
	require.NoError(t, err)
	assert.Equal(t, ReactionAdded, action)
	assert.Equal(t, int64(1), countReactions(t, db, msgID))
}

func TestReactionRepository_ToggleFlips(t *testing.T) {
	db, repo, msgID, userID := setupReaction(t)

	action, err := repo.Toggle(db, msgID, userID, chat.EmojiThumbsUp)
	require.NoError(t, err)
	assert.Equal(t, ReactionAdded, action)

	action, err = repo.Toggle(db, msgID, userID, chat.EmojiThumbsUp)
	require.NoError(t, err)
	assert.Equal(t, ReactionRemoved, action)
	assert.Zero(t, countReactions(t, db, msgID))
}
