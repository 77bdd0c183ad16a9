package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/FBMASIH/student-grades-backend/auth"
	"github.com/FBMASIH/student-grades-backend/config"
	"github.com/FBMASIH/student-grades-backend/database"
	"github.com/FBMASIH/student-grades-backend/enrollment"
	"github.com/FBMASIH/student-grades-backend/models"
	"github.com/FBMASIH/student-grades-backend/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "student-grades",
		Short:        "Course enrollment backend",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newResyncCmd(), newTokenCmd())
	return root
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := newLogger(cfg)

			db, err := database.InitDB(cfg, logger)
			if err != nil {
				return err
			}
			defer closeDB(db)

			return database.Migrate(db, logger, database.SeedOptions{
				Enabled:       cfg.SeedAdmin,
				AdminPassword: cfg.AdminPassword,
			})
		},
	}
}

func newResyncCmd() *cobra.Command {
	var groupID uint
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Rewrite group enrollment counters from the real active count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := newLogger(cfg)

			db, err := database.InitDB(cfg, logger)
			if err != nil {
				return err
			}
			defer closeDB(db)

			// Кэш не нужен: списки считают места по строкам, а не по счётчику
			engine := enrollment.NewEngine(store.NewGormStore(db), nil, logger, cfg.TxTimeout)

			var reports []enrollment.ResyncReport
			if groupID != 0 {
				report, err := engine.ResyncGroup(cmd.Context(), groupID)
				if err != nil {
					return err
				}
				reports = append(reports, report)
			} else {
				reports, err = engine.ResyncAll(cmd.Context())
				if err != nil {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		},
	}
	cmd.Flags().UintVar(&groupID, "group", 0, "resync a single group instead of all groups")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for an existing active user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			cfg := config.Load()
			logger := newLogger(cfg)

			db, err := database.InitDB(cfg, logger)
			if err != nil {
				return err
			}
			defer closeDB(db)

			var user models.User
			if err := db.WithContext(cmd.Context()).
				Where("username = ? AND is_active = ?", username, true).
				First(&user).Error; err != nil {
				return fmt.Errorf("find user %q: %w", username, err)
			}

			jwtService := auth.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTExpiry)*time.Hour)
			token, err := jwtService.GenerateToken(&user)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username of the token holder")
	return cmd
}
