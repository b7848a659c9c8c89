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
	"poolscope/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

const maxBatchSize = 500

// eventStore is the read-plus-write surface the ingest binary needs. Both
// repository implementations satisfy it.
type eventStore interface {
	application.LogStore
	application.IngestRepository
}

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

	shutdownTracing, err := telemetry.InitTracer(context.Background(), "poolscope-ingest", cfg.OtelEndpoint)
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

	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("http server error", "err", err)
			cancel()
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	slog.Info("ingest streaming started", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	consumeStream(ctx, reader, store, metrics, cfg)
}

func openStore(cfg config.Config) (eventStore, error) {
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

func consumeStream(ctx context.Context, reader *kafka.Reader, repo application.IngestRepository, metrics *httpapi.Metrics, cfg config.Config) {
	tracer := otel.Tracer("poolscope/ingest")
	batch := application.NewBatch()

	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}

	flush := func() {
		pending := batch.Len()
		if pending == 0 {
			return
		}
		if err := batch.Flush(ctx, repo, reader); err != nil {
			metrics.IncKafkaApplyErr()
			slog.Error("batch flush error", "err", err)
			return
		}
		metrics.AddLogsIngested(pending)
	}

	for {
		fetchCtx, fetchCancel := context.WithTimeout(ctx, flushInterval)
		message, err := reader.FetchMessage(fetchCtx)
		fetchCancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				flush()
				continue
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			metrics.IncKafkaFetchErr()
			slog.Error("kafka fetch error", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		decoded, err := streaming.Decode(message.Value)
		if err != nil {
			slog.Warn("message decode error", "err", err)
			metrics.IncKafkaDecodeErr()
			_ = reader.CommitMessages(ctx, message)
			continue
		}

		messageCtx := telemetry.ExtractKafkaHeaders(ctx, message.Headers)
		_, span := tracer.Start(messageCtx, "ingest.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		span.SetAttributes(
			attribute.String("network", decoded.Network),
			attribute.String("tx.hash", decoded.TxHash),
			attribute.Int64("block.number", int64(decoded.BlockNumber)),
		)
		metrics.IncKafkaMessage()
		batch.Add(decoded, message)
		span.End()

		if batch.Len() >= maxBatchSize {
			flush()
		}
	}
}
