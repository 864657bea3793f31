// Package main runs the quickgig API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/quickgig/quickgig/internal/app"
	"github.com/quickgig/quickgig/internal/config"
	"github.com/quickgig/quickgig/internal/httpapi"
	"github.com/quickgig/quickgig/internal/storage/postgres"
	"github.com/quickgig/quickgig/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	stores, cleanup, err := buildStores(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatalf("configure storage")
	}
	defer cleanup()

	application, err := app.New(stores, app.Options{
		PushEndpoint:          cfg.Push.Endpoint,
		PushAPIKey:            cfg.Push.APIKey,
		PushRatePerSecond:     cfg.Push.RatePerSecond,
		PushBurst:             cfg.Push.Burst,
		NotificationRetention: time.Duration(cfg.Notifications.RetentionDays) * 24 * time.Hour,
		RetentionSchedule:     cfg.Notifications.SweepSchedule,
	}, log)
	if err != nil {
		log.WithError(err).Fatalf("build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatalf("start application")
	}

	handler := httpapi.NewHandler(application, []byte(cfg.Auth.JWTSecret), log)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Fatalf("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("application stop")
	}

	log.Info("Stopped")
}

// buildStores opens postgres when a DSN is configured, otherwise the
// application falls back to in-memory stores.
func buildStores(cfg config.DatabaseConfig, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.DSN == "" {
		log.Warn("no database DSN configured; using in-memory stores")
		return app.Stores{}, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("ping database: %w", err)
	}

	if err := postgres.Migrate(db); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := postgres.New(db)
	return app.Stores{
		Users:         store,
		Jobs:          store,
		Applications:  store,
		Engagements:   store,
		Notifications: store,
	}, func() { db.Close() }, nil
}
