// cmd/replay/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/smsleopard-webhooks/internal/config"
	"github.com/unclebandit/smsleopard-webhooks/internal/db"
	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/queue"
	"github.com/unclebandit/smsleopard-webhooks/internal/repository"
	"github.com/unclebandit/smsleopard-webhooks/internal/service"
)

// Re-enqueues audit events whose reconciliation failed.
func main() {
	limit := flag.Int("limit", 100, "maximum number of failed events to replay")
	dryRun := flag.Bool("dry-run", false, "list replayable events without publishing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Queue != config.QueueDriverRabbitMQ {
		log.Fatalf("replay requires QUEUE_DRIVER=%s", config.QueueDriverRabbitMQ)
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

	mq := queue.NewRabbitMQ(&cfg.RabbitMQ, cfg.Batch, zlog)
	if err := mq.Connect(); err != nil {
		zlog.Fatal("Queue unavailable", zap.Error(err))
	}
	defer mq.Close()

	replayer := &service.Replayer{
		Audit:  &repository.AuditRepository{DB: conn},
		Queue:  mq,
		Logger: zlog,
	}
	res, err := replayer.Replay(ctx, *limit, *dryRun)
	if err != nil {
		zlog.Fatal("Replay failed", zap.Error(err))
	}
	zlog.Info("Replay finished",
		zap.Int("found", res.Found),
		zap.Int("replayed", res.Replayed),
		zap.Int("failed", res.Failed),
		zap.Bool("dry_run", *dryRun),
	)
}
