package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agency_backend/internal/logger"

	"github.com/adhocore/gronx"
	"gorm.io/gorm"
)

const workerName = "reply_mapping_sweeper"

// ExpiredSweeper удаляет просроченные связи ответов
type ExpiredSweeper interface {
	SweepExpired(ctx context.Context, db *gorm.DB) (int64, error)
}

type ReplyMappingWorker struct {
	db       *gorm.DB
	sweeper  ExpiredSweeper
	schedule string
	retry    time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReplyMappingWorker(db *gorm.DB, sweeper ExpiredSweeper, schedule string) *ReplyMappingWorker {
	return &ReplyMappingWorker{
		db:       db,
		sweeper:  sweeper,
		schedule: schedule,
		retry:    30 * time.Second,
	}
}

// Start проверяет cron-выражение и запускает планировщик
func (w *ReplyMappingWorker) Start(ctx context.Context) error {
	if !gronx.IsValid(w.schedule) {
		return fmt.Errorf("invalid reply mapping sweep schedule: %q", w.schedule)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)

	logger.Info("Worker started", "worker", workerName, "schedule", w.schedule)
	return nil
}

// Stop останавливает планировщик и ждет текущую очистку
func (w *ReplyMappingWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *ReplyMappingWorker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		next, err := gronx.NextTickAfter(w.schedule, time.Now().UTC(), false)
		wait := time.Until(next)
		if err != nil {
			logger.WorkerLog(workerName, "next_tick", err)
			wait = w.retry
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Worker stopped", "worker", workerName)
			return
		case <-timer.C:
		}

		if err == nil {
			w.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет одну очистку
func (w *ReplyMappingWorker) RunOnce(ctx context.Context) int64 {
	deleted, err := w.sweeper.SweepExpired(ctx, w.db.WithContext(ctx))
	if err != nil {
		logger.WorkerLog(workerName, "sweep", err)
		return 0
	}
	if deleted > 0 {
		logger.WorkerLog(workerName, "sweep", nil, "deleted", deleted)
	}
	return deleted
}
