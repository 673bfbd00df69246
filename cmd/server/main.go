package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/medimport/internal/application"
	"github.com/JonMunkholm/medimport/internal/config"
	"github.com/JonMunkholm/medimport/internal/core"
	"github.com/JonMunkholm/medimport/internal/logging"
	"github.com/JonMunkholm/medimport/internal/sheet"
	"github.com/JonMunkholm/medimport/internal/web"
)

func main() {
	// Load .env file if it exists (overwrites existing env vars)
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("could not load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"redis_enabled", cfg.Redis.URL != "",
		"auth_required", cfg.Security.RequireAPIKey,
	)

	ctx := context.Background()
	pool, err := application.OpenPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	rdb, err := application.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		slog.Error("redis unavailable", "error", err)
		pool.Close()
		os.Exit(1)
	}

	backends := application.NewBackends(pool, rdb, logger)
	defer backends.Close()

	service, err := backends.NewService(*cfg, logger)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	slog.Info("import kinds registered", "count", core.SchemaCount(), "kinds", core.Kinds())

	opts := []web.Option{
		web.WithAudit(backends.Audit),
		web.WithRollback(backends.Store),
	}
	if backends.Progress != nil {
		opts = append(opts, web.WithProgress(backends.Progress))
	}
	if s3src, err := sheet.NewS3Source(ctx, cfg.Storage.Region, cfg.Storage.MaxObjectSize); err != nil {
		slog.Warn("S3 sources disabled", "error", err)
	} else {
		opts = append(opts, web.WithObjectFetcher(s3src))
	}

	server := web.NewServer(service, cfg, opts...)

	// Graceful shutdown
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting uploads first, then let running sessions drain
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForSessions(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		return
	}
	<-drained
	slog.Info("server stopped")
}
