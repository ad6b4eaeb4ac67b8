package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/smsleopard-webhooks/internal/app"
	"github.com/unclebandit/smsleopard-webhooks/internal/config"
	"github.com/unclebandit/smsleopard-webhooks/internal/db"
	"github.com/unclebandit/smsleopard-webhooks/internal/handler"
	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/metrics"
	"github.com/unclebandit/smsleopard-webhooks/internal/queue"
)

// The worker drains the durable queue in batches. It exits non-zero when the
// broker channel closes so the supervisor restarts it.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Queue != config.QueueDriverRabbitMQ {
		log.Fatalf("worker requires QUEUE_DRIVER=%s, got %q", config.QueueDriverRabbitMQ, cfg.Queue)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(&cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("Database unavailable", zap.Error(err))
	}
	defer conn.Close()

	tenants, rdb, err := app.Tenants(ctx, cfg, conn, zlog)
	if err != nil {
		zlog.Fatal("Tenant cache unavailable", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	mq := queue.NewRabbitMQ(&cfg.RabbitMQ, cfg.Batch, zlog)
	if err := mq.Connect(); err != nil {
		zlog.Fatal("Queue unavailable", zap.Error(err))
	}
	defer mq.Close()

	metrics.InitWorkerMetrics()
	processor := app.Processor(cfg, conn, tenants, zlog)

	health := &handler.HealthHandler{
		Checks: map[string]handler.Pinger{
			"database": handler.PingFunc(func(ctx context.Context) error { return db.HealthCheck(ctx, conn) }),
			"queue":    handler.PingFunc(func(context.Context) error { return mq.Ping() }),
		},
	}
	r := chi.NewRouter()
	r.Get("/health", health.Health)
	r.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("Metrics server failed", zap.Error(err))
		}
	}()

	zlog.Info("Worker running, waiting for webhooks...",
		zap.Int("batch_size", cfg.Batch.Size),
		zap.Duration("batch_window", cfg.Batch.Window),
		zap.Int("concurrency", cfg.Batch.Concurrency),
	)
	consumeErr := mq.Consume(ctx, processor.ProcessBatch)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if consumeErr != nil && !errors.Is(consumeErr, context.Canceled) {
		zlog.Error("Consumer stopped", zap.Error(consumeErr))
		os.Exit(1)
	}
	zlog.Info("Worker stopped")
}
