package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

type MessageRepositoryInterface interface {
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.MessageLedgerEntry, error)
	ApplyStatus(ctx context.Context, update model.StatusUpdate) (*model.MessageLedgerEntry, error)
}

// MessageRepository is the general message ledger (messages table).
type MessageRepository struct {
	DB *sql.DB
}

const messageColumns = `id, tenant_id, provider_message_id, direction, campaign_id, status, sent_at, delivered_at, read_at, failed_at, failure_reason, updated_at`

func (r *MessageRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.MessageLedgerEntry, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE provider_message_id = $1`
	entry, err := scanMessage(r.DB.QueryRowContext(ctx, query, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

// ApplyStatus returns (nil, nil) when the tenant has no ledger row for the
// message.
func (r *MessageRepository) ApplyStatus(ctx context.Context, update model.StatusUpdate) (*model.MessageLedgerEntry, error) {
	query := statusUpdateQuery("messages", messageTenantScope, messageColumns, update.Status)
	entry, err := scanMessage(r.DB.QueryRowContext(ctx, query, statusUpdateArgs(update)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func scanMessage(row *sql.Row) (*model.MessageLedgerEntry, error) {
	var (
		m          model.MessageLedgerEntry
		campaignID sql.NullInt64
		reason     sql.NullString
	)
	err := row.Scan(&m.ID, &m.TenantID, &m.ProviderMessageID, &m.Direction, &campaignID, &m.Status,
		&m.SentAt, &m.DeliveredAt, &m.ReadAt, &m.FailedAt, &reason, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if campaignID.Valid {
		id := int(campaignID.Int64)
		m.CampaignID = &id
	}
	if reason.Valid {
		m.FailureReason = &reason.String
	}
	return &m, nil
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
