package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FBMASIH/student-grades-backend/auth"
	"github.com/FBMASIH/student-grades-backend/cache"
	"github.com/FBMASIH/student-grades-backend/config"
	"github.com/FBMASIH/student-grades-backend/database"
	"github.com/FBMASIH/student-grades-backend/enrollment"
	"github.com/FBMASIH/student-grades-backend/handlers"
	"github.com/FBMASIH/student-grades-backend/middleware"
	"github.com/FBMASIH/student-grades-backend/store"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Load())
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)
	logger.Info("starting server", "port", cfg.ServerPort)

	db, err := database.InitDB(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB(db)

	readDB, err := database.InitReadDB(cfg)
	if err != nil {
		return err
	}
	defer readDB.Close()

	rdb := cache.Connect(ctx, cfg.RedisAddr, logger)
	if rdb != nil {
		defer rdb.Close()
	}
	rosterCache := cache.New(rdb)

	engine := enrollment.NewEngine(store.NewGormStore(db), rosterCache, logger, cfg.TxTimeout)
	query := enrollment.NewQuery(store.NewReader(readDB), engine, rosterCache, cfg.RosterCacheTTL, logger)

	jwtService := auth.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTExpiry)*time.Hour)
	router := handlers.NewRouter(handlers.Deps{
		Engine: engine,
		Query:  query,
		Auth:   middleware.NewAuthMiddleware(jwtService, logger),
		Logger: logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.TxTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
