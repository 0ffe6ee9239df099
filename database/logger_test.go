package database

import (
	"testing"

	"saascore/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestLoggerSkipsMissingRows(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: newLogger(zap.New(core), false),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	var user models.User
	err = db.First(&user, 42).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	err = db.Raw("SELECT * FROM no_such_table").Scan(&user).Error
	assert.Error(t, err)
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "no_such_table")
	assert.Equal(t, "gorm", logs.All()[0].LoggerName)
}
