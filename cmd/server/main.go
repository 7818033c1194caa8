package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/sheetdesk/internal/codec"
	"github.com/JonMunkholm/sheetdesk/internal/config"
	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/JonMunkholm/sheetdesk/internal/logging"
	"github.com/JonMunkholm/sheetdesk/internal/store"
	"github.com/JonMunkholm/sheetdesk/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// backend is a workbook store that also records the audit log.
type backend interface {
	core.Store
	core.AuditSink
}

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
		"store_backend", cfg.Store.Backend,
		"upload_max_file_size", cfg.Upload.MaxFileSize,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"session_max", cfg.Session.Max,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	cdc := codec.New(codec.Options{
		UnzipSizeLimit:    cfg.Upload.UnzipSizeLimit,
		UnzipXMLSizeLimit: cfg.Upload.UnzipXMLSizeLimit,
	})

	service, err := core.NewService(cdc, st, st, core.Options{
		LegacyEditExport:     cfg.Export.LegacyEdits,
		MaxConcurrentDecodes: cfg.Upload.MaxConcurrent,
		DecodeWait:           cfg.Upload.QueueTimeout,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	sessions := core.NewSessionStore(cfg.Session.IdleTimeout, cfg.Session.Max)
	server := web.NewServer(service, sessions, cdc, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go sessions.StartSweeper(jobCtx, cfg.Session.SweepInterval)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if err := service.WaitForUploads(shutdownCtx); err != nil {
			slog.Warn("uploads still in flight at shutdown", "status", service.UploadStatus())
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openStore builds the configured workbook store and returns a func that
// releases its resources.
func openStore(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	switch cfg.Store.Backend {
	case store.BackendFile:
		fs, err := store.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using file store", "dir", fs.Dir())
		return fs, func() {}, nil

	case store.BackendPostgres:
		pool, err := connectPostgres(ctx, cfg.Store)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func connectPostgres(ctx context.Context, sc config.StoreConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(sc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(sc.MaxConns)
	poolConfig.MinConns = int32(sc.MinConns)
	poolConfig.MaxConnLifetime = sc.MaxConnLifetime
	poolConfig.MaxConnIdleTime = sc.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Log which database we connected to
	if u, err := url.Parse(sc.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
