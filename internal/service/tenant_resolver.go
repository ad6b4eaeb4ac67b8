package service

import (
	"context"

	appErrors "github.com/unclebandit/smsleopard-webhooks/internal/errors"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
	"github.com/unclebandit/smsleopard-webhooks/internal/repository"
)

// TenantResolver maps provider credentials and routing ids to an active tenant.
type TenantResolver struct {
	Tenants repository.TenantRepositoryInterface
}

func (r *TenantResolver) ResolveByVerificationToken(ctx context.Context, token string) (*model.Tenant, error) {
	if token == "" {
		return nil, appErrors.ErrTenantNotFound
	}
	t, err := r.Tenants.GetActiveByVerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, appErrors.ErrTenantNotFound
	}
	return t, nil
}

// ResolveByRouting tries the account id first and falls back to the channel
// id when the account id is empty or matches no active tenant.
func (r *TenantResolver) ResolveByRouting(ctx context.Context, accountID, channelID string) (*model.Tenant, error) {
	if accountID != "" {
		t, err := r.Tenants.GetActiveByAccountID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if t.IsActive() {
			return t, nil
		}
	}
	if channelID != "" {
		t, err := r.Tenants.GetActiveByChannelID(ctx, channelID)
		if err != nil {
			return nil, err
		}
		if t.IsActive() {
			return t, nil
		}
	}
	return nil, appErrors.ErrTenantNotFound
}
