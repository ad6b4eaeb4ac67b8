// cmd/server/main.go
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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/smsleopard-webhooks/internal/app"
	"github.com/unclebandit/smsleopard-webhooks/internal/config"
	"github.com/unclebandit/smsleopard-webhooks/internal/controller"
	"github.com/unclebandit/smsleopard-webhooks/internal/db"
	"github.com/unclebandit/smsleopard-webhooks/internal/handler"
	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/metrics"
	"github.com/unclebandit/smsleopard-webhooks/internal/queue"
	"github.com/unclebandit/smsleopard-webhooks/internal/repository"
	"github.com/unclebandit/smsleopard-webhooks/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
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

	metrics.InitAPIMetrics()

	var (
		publisher queue.Publisher
		queuePing func() error
	)
	switch cfg.Queue {
	case config.QueueDriverMemory:
		// Without a broker the server reconciles in-process.
		metrics.InitWorkerMetrics()
		q := queue.NewInMemoryQueue(queue.Options{
			BatchSize:  cfg.Batch.Size,
			Window:     cfg.Batch.Window,
			MaxRetries: cfg.Batch.MaxRetries,
		}, zlog)
		processor := app.Processor(cfg, conn, tenants, zlog)
		go func() {
			if err := q.Consume(ctx, processor.ProcessBatch); err != nil && !errors.Is(err, context.Canceled) {
				zlog.Error("In-memory consumer stopped", zap.Error(err))
			}
		}()
		publisher, queuePing = q, q.Ping
	default:
		mq := queue.NewRabbitMQ(&cfg.RabbitMQ, cfg.Batch, zlog)
		if err := mq.Connect(); err != nil {
			zlog.Fatal("Queue unavailable", zap.Error(err))
		}
		defer mq.Close()
		publisher, queuePing = mq, mq.Ping
	}

	webhookController := &controller.WebhookController{
		Receiver: &service.Receiver{
			Resolver: &service.TenantResolver{Tenants: tenants},
			Queue:    publisher,
			Logger:   zlog,
		},
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       zlog,
	}

	campaignHandler := &handler.CampaignHandler{
		Repo:   &repository.CampaignRepository{DB: conn},
		Logger: zlog,
	}

	health := &handler.HealthHandler{
		Checks: map[string]handler.Pinger{
			"database": handler.PingFunc(func(ctx context.Context) error { return db.HealthCheck(ctx, conn) }),
			"queue":    handler.PingFunc(func(context.Context) error { return queuePing() }),
		},
		Optional: map[string]handler.Pinger{},
	}
	if rdb != nil {
		health.Optional["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// Webhook routes
	r.Get("/webhooks/whatsapp", webhookController.Verify)
	r.Post("/webhooks/whatsapp", webhookController.Receive)

	// Campaign routes
	r.Get("/campaigns/{id}/stats", campaignHandler.GetCampaignStats)
	r.Post("/campaigns/{id}/stats/recompute", campaignHandler.RecomputeCampaignStats)

	r.Get("/health", health.Health)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zlog.Info("Server running", zap.String("addr", srv.Addr), zap.String("queue", cfg.Queue))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zlog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Server shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}
