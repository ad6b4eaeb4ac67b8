package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

// TenantRepositoryInterface defines the credential lookups used by the resolver.
// Every method returns (nil, nil) when no active tenant matches.
type TenantRepositoryInterface interface {
	GetActiveByVerifyToken(ctx context.Context, token string) (*model.Tenant, error)
	GetActiveByAccountID(ctx context.Context, accountID string) (*model.Tenant, error)
	GetActiveByChannelID(ctx context.Context, channelID string) (*model.Tenant, error)
}

// TenantRepository reads the externally managed tenants table.
type TenantRepository struct {
	DB *sql.DB
}

const tenantColumns = `id, name, status, account_id, channel_id, verify_token, app_secret, created_at, updated_at`

func (r *TenantRepository) GetActiveByVerifyToken(ctx context.Context, token string) (*model.Tenant, error) {
	return r.getActiveBy(ctx, "verify_token", token)
}

func (r *TenantRepository) GetActiveByAccountID(ctx context.Context, accountID string) (*model.Tenant, error) {
	return r.getActiveBy(ctx, "account_id", accountID)
}

func (r *TenantRepository) GetActiveByChannelID(ctx context.Context, channelID string) (*model.Tenant, error) {
	return r.getActiveBy(ctx, "channel_id", channelID)
}

// column is always one of the fixed names above, never caller input.
func (r *TenantRepository) getActiveBy(ctx context.Context, column, value string) (*model.Tenant, error) {
	if value == "" {
		return nil, nil
	}
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE ` + column + ` = $1 AND status = 'active' LIMIT 1`

	row := r.DB.QueryRowContext(ctx, query, value)
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // not found
		}
		return nil, err
	}
	return t, nil
}

func scanTenant(row *sql.Row) (*model.Tenant, error) {
	var (
		t                                         model.Tenant
		accountID, channelID, verifyToken, secret sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Status, &accountID, &channelID, &verifyToken, &secret, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.AccountID = accountID.String
	t.ChannelID = channelID.String
	t.VerifyToken = verifyToken.String
	t.AppSecret = secret.String
	return &t, nil
}

var _ TenantRepositoryInterface = (*TenantRepository)(nil)
