package database

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/FBMASIH/student-grades-backend/auth"
	"github.com/FBMASIH/student-grades-backend/models"
)

// SeedOptions controls the initial admin account.
type SeedOptions struct {
	Enabled       bool
	AdminUsername string
	AdminPassword string
}

// Migrate creates or updates the schema and, when asked, seeds an admin.
func Migrate(db *gorm.DB, logger *slog.Logger, seed SeedOptions) error {
	logger.Info("starting database migration")

	// Порядок важен: сначала независимые таблицы, потом зависимые
	tables := []interface{}{
		&models.User{},
		&models.Course{},
		&models.CourseGroup{},
		&models.Enrollment{},
	}
	for _, table := range tables {
		if err := db.AutoMigrate(table); err != nil {
			return fmt.Errorf("migrate %T: %w", table, err)
		}
		logger.Debug("table migrated", "model", fmt.Sprintf("%T", table))
	}

	createIndexes(db, logger)

	if seed.Enabled {
		if err := seedAdmin(db, logger, seed); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}

	logger.Info("database migration completed")
	return nil
}

// Partial unique indexes back the one-active-row rules. Both Postgres and
// SQLite accept this syntax.
var indexes = []struct {
	name string
	sql  string
}{
	{
		name: "uq_enrollments_active_group",
		sql: `CREATE UNIQUE INDEX IF NOT EXISTS uq_enrollments_active_group
			ON enrollments (student_id, group_id)
			WHERE is_active AND group_id IS NOT NULL`,
	},
	{
		name: "uq_enrollments_active_legacy",
		sql: `CREATE UNIQUE INDEX IF NOT EXISTS uq_enrollments_active_legacy
			ON enrollments (student_id, course_id)
			WHERE is_active AND group_id IS NULL`,
	},
	{
		name: "idx_enrollments_group_active",
		sql:  `CREATE INDEX IF NOT EXISTS idx_enrollments_group_active ON enrollments (group_id, is_active)`,
	},
}

// createIndexes does not fail the migration: existing data that violates a
// unique index is logged and left alone.
func createIndexes(db *gorm.DB, logger *slog.Logger) {
	for _, idx := range indexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			logger.Warn("could not create index", "index", idx.name, "error", err)
		}
	}
}

func seedAdmin(db *gorm.DB, logger *slog.Logger, seed SeedOptions) error {
	username := seed.AdminUsername
	if username == "" {
		username = "admin"
	}

	var existing models.User
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		logger.Info("admin user already exists, skipping seed", "username", username)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := auth.HashPassword(seed.AdminPassword)
	if err != nil {
		return err
	}
	admin := models.User{
		Username:  username,
		Password:  hashed,
		FirstName: "System",
		LastName:  "Administrator",
		Role:      models.RoleAdmin,
		IsActive:  true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	logger.Info("created admin user", "username", username, "id", admin.ID)
	return nil
}
