package database

import (
	"log/slog"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// sqliteDSN hardens a file DSN for tests: one writer connection and
// immediate transactions stand in for Postgres row locks.
func sqliteDSN(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

// OpenTestDB opens a migrated SQLite database in t.TempDir() and returns a
// gorm handle plus an sqlx handle over the same connection pool.
func OpenTestDB(t *testing.T) (*gorm.DB, *sqlx.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), gormConfig())
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db, slog.New(slog.DiscardHandler), SeedOptions{}); err != nil {
		t.Fatalf("migrate test sqlite: %v", err)
	}

	return db, sqlx.NewDb(sqlDB, "sqlite3")
}
