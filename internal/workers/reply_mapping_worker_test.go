package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"agency_backend/internal/config"
	"agency_backend/internal/models/chat"
	"agency_backend/internal/presence"
	"agency_backend/internal/services"
	"agency_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSweeper struct {
	calls   int32
	deleted int64
	err     error
}

func (f *fakeSweeper) SweepExpired(ctx context.Context, db *gorm.DB) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.deleted, f.err
}

func TestReplyMappingWorker_RejectsInvalidSchedule(t *testing.T) {
	w := NewReplyMappingWorker(testutil.NewTestDB(t), &fakeSweeper{}, "every tuesday")
	assert.Error(t, w.Start(context.Background()))
	// Stop без Start не блокируется
	w.Stop()
}

func TestReplyMappingWorker_StopsOnCancel(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := NewReplyMappingWorker(testutil.NewTestDB(t), sweeper, "0 3 * * *")
	require.NoError(t, w.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Zero(t, atomic.LoadInt32(&sweeper.calls))
}

func TestReplyMappingWorker_RunOnce(t *testing.T) {
	db := testutil.NewTestDB(t)

	t.Run("Ошибка очистки не роняет воркер", func(t *testing.T) {
		w := NewReplyMappingWorker(db, &fakeSweeper{err: errors.New("db is down")}, "* * * * *")
		assert.Zero(t, w.RunOnce(context.Background()))
	})

	t.Run("Удаляет только просроченные связи", func(t *testing.T) {
		cfg := config.Default()
		svc := services.NewServiceContainer(services.Dependencies{
			Config:      cfg,
			Broadcaster: testutil.NewRecordingBroadcaster(),
			Presence:    presence.NewRegistry(),
		})

		alice := testutil.CreateUser(t, db, "Alice", "Smith")
		bob := testutil.CreateUser(t, db, "Bob", "Jones")
		c := testutil.CreateChat(t, db, false, alice, bob)

		now := time.Now().UTC()
		require.NoError(t, db.Create(&chat.ReplyMapping{
			ChannelMessageRef: "9:1",
			ChatID:            c.ID,
			RecipientUserID:   bob.ID,
			ReplyToUserID:     alice.ID,
			ExpiresAt:         now.Add(-time.Hour),
		}).Error)
		require.NoError(t, svc.ReplyBridgeService.Register(context.Background(), db, "9:2", c.ID, bob.ID, alice.ID))

		w := NewReplyMappingWorker(db, svc.ReplyBridgeService, cfg.ReplyBridge.SweepSchedule)
		assert.Equal(t, int64(1), w.RunOnce(context.Background()))

		var left []chat.ReplyMapping
		require.NoError(t, db.Find(&left).Error)
		require.Len(t, left, 1)
		assert.Equal(t, "9:2", left[0].ChannelMessageRef)
	})
}
