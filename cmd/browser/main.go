package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poolscope/internal/application"
	"poolscope/internal/config"
	"poolscope/internal/infrastructure/logging"
	"poolscope/internal/infrastructure/mysql"
	"poolscope/internal/infrastructure/sqlite"
	"poolscope/internal/infrastructure/telemetry"
	"poolscope/internal/interfaces/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	rotating, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		log.Fatalf("logging error: %v", err)
	}
	if rotating != nil {
		defer rotating.Close()
	}

	shutdownTracing, err := telemetry.InitTracer(context.Background(), "poolscope-browser", cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				slog.Warn("tracing shutdown error", "err", err)
			}
		}()
	}

	store, err := openStore(cfg)
	if err != nil {
		slog.Error("store error", "err", err)
		os.Exit(1)
	}

	metrics := httpapi.NewMetrics()
	orchestrator, err := application.NewOrchestrator(store, metrics, cfg.QueryTimeout)
	if err != nil {
		slog.Error("orchestrator error", "err", err)
		os.Exit(1)
	}

	httpServer, err := httpapi.NewServer(cfg, orchestrator, store, metrics, httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("http server listening", "addr", cfg.HTTPAddr, "driver", cfg.StoreDriver)
	if err := httpServer.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}
}

func openStore(cfg config.Config) (application.LogStore, error) {
	if cfg.StoreDriver == "mysql" {
		base, err := mysql.NewRepository(cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		cached, err := mysql.NewCachedRepository(base, mysql.CacheConfig{
			Addr: cfg.RedisAddr,
			TTL:  time.Hour,
		})
		if err != nil {
			slog.Warn("redis cache disabled", "err", err)
			return base, nil
		}
		return cached, nil
	}
	repo, err := sqlite.NewRepository(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return repo, nil
}
