// Package app wires repositories, queues and services for the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/smsleopard-webhooks/internal/config"
	"github.com/unclebandit/smsleopard-webhooks/internal/repository"
	"github.com/unclebandit/smsleopard-webhooks/internal/service"
)

// Tenants returns the tenant repository, fronted by redis when REDIS_ADDR is
// set. The returned client is nil when the cache is disabled.
func Tenants(ctx context.Context, cfg *config.Config, conn *sql.DB, log *zap.Logger) (repository.TenantRepositoryInterface, *redis.Client, error) {
	base := &repository.TenantRepository{DB: conn}
	if cfg.Redis.Addr == "" {
		return base, nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Tenant cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TenantTTL))

	return &repository.CachedTenantRepository{
		Next:   base,
		Redis:  rdb,
		TTL:    cfg.Redis.TenantTTL,
		Logger: log,
	}, rdb, nil
}

// Processor builds the batch processor over Postgres-backed repositories.
func Processor(cfg *config.Config, conn *sql.DB, tenants repository.TenantRepositoryInterface, log *zap.Logger) *service.BatchProcessor {
	messages := &repository.MessageRepository{DB: conn}
	audience := &repository.CampaignAudienceRepository{DB: conn}

	return &service.BatchProcessor{
		Resolver: &service.TenantResolver{Tenants: tenants},
		Audit:    &repository.AuditRepository{DB: conn},
		Statuses: &service.StatusReconciler{
			Messages:  messages,
			Audience:  audience,
			Campaigns: &repository.CampaignRepository{DB: conn},
			Logger:    log,
		},
		Incoming: &service.IncomingReconciler{
			Incoming: &repository.IncomingMessageRepository{DB: conn},
			Messages: messages,
			Audience: audience,
			Logger:   log,
		},
		ItemTimeout: cfg.Batch.ItemTimeout,
		Concurrency: cfg.Batch.Concurrency,
		Logger:      log,
	}
}
