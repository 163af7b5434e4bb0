package database

import (
	"fmt"
	"time"

	"agency_backend/internal/config"
	"agency_backend/internal/logger"
	"agency_backend/internal/models"
	chatmodels "agency_backend/internal/models/chat"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig - общие настройки GORM для приложения и тестов.
// Время всегда в UTC, ошибки драйвера переводятся в gorm.ErrDuplicatedKey и т.п.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}
}

// Connect открывает пул соединений к Postgres (драйвер pgx)
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLife)

	return db, nil
}

// Models - все таблицы схемы в порядке зависимостей
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&chatmodels.Chat{},
		&chatmodels.ChatParticipant{},
		&chatmodels.Message{},
		&chatmodels.MessageAttachment{},
		&chatmodels.MessageReaction{},
		&chatmodels.MessageReadReceipt{},
		&chatmodels.Mention{},
		&chatmodels.ReplyMapping{},
	}
}

// AutoMigrate выполняет миграцию всех моделей
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	logger.Info("AutoMigrate completed", "tables", len(Models()))
	return nil
}
