package repository

import (
	"context"
	"database/sql"
	"errors"

	appErrors "github.com/unclebandit/smsleopard-webhooks/internal/errors"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

type CampaignRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	RecomputeStats(ctx context.Context, campaignID int) (*model.CampaignStats, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `
        SELECT id, name, status, targeted, sent, delivered, read, failed, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Status,
		&c.Stats.Targeted, &c.Stats.Sent, &c.Stats.Delivered, &c.Stats.Read, &c.Stats.Failed,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

// RecomputeStats rewrites the campaign counters from the current audience
// states in a single statement. Counts reflect exact state, so a recipient
// that reached "read" is counted as read only.
func (r *CampaignRepository) RecomputeStats(ctx context.Context, campaignID int) (*model.CampaignStats, error) {
	query := `
        WITH agg AS (
            SELECT
                COUNT(*) AS targeted,
                COUNT(*) FILTER (WHERE status = 'sent') AS sent,
                COUNT(*) FILTER (WHERE status = 'delivered') AS delivered,
                COUNT(*) FILTER (WHERE status = 'read') AS read,
                COUNT(*) FILTER (WHERE status = 'failed') AS failed
            FROM campaign_audience WHERE campaign_id = $1
        )
        UPDATE campaigns c
        SET targeted = agg.targeted, sent = agg.sent, delivered = agg.delivered,
            read = agg.read, failed = agg.failed, updated_at = NOW()
        FROM agg
        WHERE c.id = $1
        RETURNING c.targeted, c.sent, c.delivered, c.read, c.failed
    `
	var s model.CampaignStats
	err := r.DB.QueryRowContext(ctx, query, campaignID).Scan(&s.Targeted, &s.Sent, &s.Delivered, &s.Read, &s.Failed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(campaignID)
		}
		return nil, err
	}
	return &s, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
