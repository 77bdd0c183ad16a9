package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // драйвер PostgreSQL
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/FBMASIH/student-grades-backend/config"
)

const connectRetryDelay = 2 * time.Second

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	}
}

// InitDB opens the gorm connection used for every write. Postgres in a
// fresh container may need a few seconds, so the connection is retried.
func InitDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	attempts := cfg.DBConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < attempts; i++ {
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN()), gormConfig())
		if err == nil {
			break
		}
		logger.Warn("database connection attempt failed", "attempt", i+1, "of", attempts, "error", err)
		if i < attempts-1 {
			time.Sleep(connectRetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxOpenConns / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Info("connected to PostgreSQL", "host", cfg.DBHost, "db", cfg.DBName)
	return db, nil
}

// InitReadDB opens the sqlx pool that serves read-only queries.
func InitReadDB(cfg *config.Config) (*sqlx.DB, error) {
	// Сначала используем стандартный database/sql
	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Затем оборачиваем в sqlx
	dbx := sqlx.NewDb(db, "postgres")
	dbx.SetMaxOpenConns(cfg.DBMaxOpenConns)

	if err := dbx.Ping(); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}
	return dbx, nil
}
