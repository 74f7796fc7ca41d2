// Package sqlitetest opens throwaway SQLite databases for tests.
package sqlitetest

import (
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"handlescope/internal/infrastructure/persistence/sqlite/model"
)

// DSN returns a file DSN in dir tuned for concurrent writers: WAL journal and
// a busy timeout so competing transactions queue instead of failing.
func DSN(dir string) string {
	return filepath.Join(dir, "handlescope.sqlite") +
		"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
}

// Open returns a migrated database that is closed when the test ends.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(DSN(t.TempDir())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}
