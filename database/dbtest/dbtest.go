// Package dbtest opens throwaway databases for tests.
package dbtest

import (
	"testing"

	"saascore/config"
	"saascore/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open returns a migrated, private in-memory sqlite database.
// Each call gets its own database so tests never share rows.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", URL: dsn}, zap.NewNop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
