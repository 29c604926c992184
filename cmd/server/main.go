package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/tabwork/internal/config"
	"github.com/JonMunkholm/tabwork/internal/core"
	"github.com/JonMunkholm/tabwork/internal/logging"
	"github.com/JonMunkholm/tabwork/internal/store"
	"github.com/JonMunkholm/tabwork/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Backend,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	tables, err := store.Open(ctx, store.Config{
		Backend:     cfg.Storage.Backend,
		Dir:         cfg.Storage.Dir,
		DatabaseURL: cfg.Storage.DatabaseURL,
		SQLitePath:  cfg.Storage.SQLitePath,
		Pool: store.PoolConfig{
			MaxConns:        cfg.Storage.MaxConns,
			MinConns:        cfg.Storage.MinConns,
			MaxConnLifetime: cfg.Storage.MaxConnLifetime,
			MaxConnIdleTime: cfg.Storage.MaxConnIdleTime,
		},
	})
	if err != nil {
		slog.Error("failed to open table store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer tables.Close()

	uploads, err := store.NewUploads(cfg.Upload.Dir)
	if err != nil {
		slog.Error("failed to open upload directory", "dir", cfg.Upload.Dir, "error", err)
		os.Exit(1)
	}

	service := core.NewService(tables, uploads,
		core.NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		core.Options{
			MaxFileSize:       cfg.Upload.MaxFileSize,
			AllowedExtensions: cfg.Upload.AllowedExtensions,
			PreviewRows:       cfg.Import.PreviewRows,
			ImportWorkers:     cfg.Import.Workers,
			ImportTimeout:     cfg.Import.Timeout,
			JoinMaxRows:       cfg.Join.MaxRows,
		})

	server := web.NewServer(service, cfg)

	// Graceful shutdown. main waits on done so deferred cleanup runs only
	// after running imports and joins have drained.
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for imports and joins to complete", "active", status.Active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		tables.Close()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
