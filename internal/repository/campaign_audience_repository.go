package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

type CampaignAudienceRepositoryInterface interface {
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.CampaignAudienceEntry, error)
	ApplyStatus(ctx context.Context, update model.StatusUpdate) (*model.CampaignAudienceEntry, error)
}

type CampaignAudienceRepository struct {
	DB *sql.DB
}

const audienceColumns = `id, campaign_id, customer_id, phone, provider_message_id, status, sent_at, delivered_at, read_at, failed_at, failure_reason, updated_at`

func (r *CampaignAudienceRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.CampaignAudienceEntry, error) {
	query := `SELECT ` + audienceColumns + ` FROM campaign_audience WHERE provider_message_id = $1`
	entry, err := scanAudience(r.DB.QueryRowContext(ctx, query, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

// ApplyStatus returns (nil, nil) when the message was not part of one of the
// tenant's campaigns.
func (r *CampaignAudienceRepository) ApplyStatus(ctx context.Context, update model.StatusUpdate) (*model.CampaignAudienceEntry, error) {
	query := statusUpdateQuery("campaign_audience", audienceTenantScope, audienceColumns, update.Status)
	entry, err := scanAudience(r.DB.QueryRowContext(ctx, query, statusUpdateArgs(update)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func scanAudience(row *sql.Row) (*model.CampaignAudienceEntry, error) {
	var (
		a          model.CampaignAudienceEntry
		customerID sql.NullInt64
		phone      sql.NullString
		reason     sql.NullString
	)
	err := row.Scan(&a.ID, &a.CampaignID, &customerID, &phone, &a.ProviderMessageID, &a.Status,
		&a.SentAt, &a.DeliveredAt, &a.ReadAt, &a.FailedAt, &reason, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		id := int(customerID.Int64)
		a.CustomerID = &id
	}
	a.Phone = phone.String
	if reason.Valid {
		a.FailureReason = &reason.String
	}
	return &a, nil
}

var _ CampaignAudienceRepositoryInterface = (*CampaignAudienceRepository)(nil)
