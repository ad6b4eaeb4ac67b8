package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

// Entries always expire so status changes made by the admin system are seen.
const defaultTenantTTL = 30 * time.Second

// CachedTenantRepository fronts a TenantRepositoryInterface with redis.
// Only hits are cached; a miss always goes to the database so a newly
// provisioned tenant is visible immediately. Cache errors degrade to the
// database lookup.
type CachedTenantRepository struct {
	Next   TenantRepositoryInterface
	Redis  *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
}

func (r *CachedTenantRepository) GetActiveByVerifyToken(ctx context.Context, token string) (*model.Tenant, error) {
	return r.cached(ctx, "tenant:token:"+token, func() (*model.Tenant, error) {
		return r.Next.GetActiveByVerifyToken(ctx, token)
	})
}

func (r *CachedTenantRepository) GetActiveByAccountID(ctx context.Context, accountID string) (*model.Tenant, error) {
	return r.cached(ctx, "tenant:account:"+accountID, func() (*model.Tenant, error) {
		return r.Next.GetActiveByAccountID(ctx, accountID)
	})
}

func (r *CachedTenantRepository) GetActiveByChannelID(ctx context.Context, channelID string) (*model.Tenant, error) {
	return r.cached(ctx, "tenant:channel:"+channelID, func() (*model.Tenant, error) {
		return r.Next.GetActiveByChannelID(ctx, channelID)
	})
}

func (r *CachedTenantRepository) cached(ctx context.Context, key string, load func() (*model.Tenant, error)) (*model.Tenant, error) {
	raw, err := r.Redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t model.Tenant
		if jsonErr := json.Unmarshal(raw, &t); jsonErr == nil {
			return &t, nil
		}
		r.Logger.Warn("Discarding undecodable tenant cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		r.Logger.Warn("Tenant cache read failed", zap.String("key", key), zap.Error(err))
	}

	t, err := load()
	if err != nil || t == nil {
		return t, err
	}

	ttl := r.TTL
	if ttl <= 0 {
		ttl = defaultTenantTTL
	}
	if data, err := json.Marshal(t); err == nil {
		if err := r.Redis.Set(ctx, key, data, ttl).Err(); err != nil {
			r.Logger.Warn("Tenant cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return t, nil
}

var _ TenantRepositoryInterface = (*CachedTenantRepository)(nil)
