package repository

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Streamer{},
		&models.Stream{},
		&models.Chapter{},
		&models.Recording{},
		&models.ActiveRecordingState{},
		&models.RecordingProcessingState{},
		&models.StreamMetadata{},
		&models.Session{},
		&models.ShareToken{},
		&models.GlobalSettings{},
		&models.ProxySettings{},
		&models.StreamerRecordingSettings{},
	)
	require.NoError(t, err)

	return db
}
