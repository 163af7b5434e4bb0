package testutil

import (
	"fmt"
	"testing"

	"agency_backend/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewTestDB поднимает изолированную in-memory SQLite базу с полной схемой.
// Одно соединение: каждая :memory: база живет внутри своего соединения.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := database.GormConfig()
	cfg.Logger = gormlogger.Discard

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(database.Models()...))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}
