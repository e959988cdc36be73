// CloudDrive Server
//
// Features:
// - Account registration and JWT login
// - Per-user file catalog with owner/write/read access levels
// - Upload-as-update by display name, full-content editing, sharing
// - SQLite or PostgreSQL metadata, local or S3 content storage
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MaxymDv/CloudDrive-System/internal/api"
	"github.com/MaxymDv/CloudDrive-System/internal/auth"
	"github.com/MaxymDv/CloudDrive-System/internal/config"
	"github.com/MaxymDv/CloudDrive-System/internal/logging"
	"github.com/MaxymDv/CloudDrive-System/internal/metadata"
	"github.com/MaxymDv/CloudDrive-System/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logging is not configured yet.
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.Output,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("CloudDrive server starting",
		zap.String("listen", cfg.Server.ListenAddr),
		zap.String("database", cfg.Database.Driver),
		zap.String("storage", cfg.Storage.Backend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store metadata.Store
	switch cfg.Database.Driver {
	case "postgres":
		store, err = metadata.OpenPostgres(ctx, cfg.Database.URL)
	default:
		store, err = metadata.OpenSQLite(ctx, cfg.Database.Path)
	}
	if err != nil {
		logging.Fatal("metadata store init failed", zap.Error(err))
	}
	defer store.Close()

	blobs, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logging.Fatal("storage backend init failed", zap.Error(err))
	}
	defer blobs.Close()

	authHandler := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	srv := api.NewServer(store, blobs, authHandler, cfg.Server.MaxUploadBytes)

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.Info("listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("shutdown error", zap.Error(err))
	}
	logging.Info("server stopped")
}
