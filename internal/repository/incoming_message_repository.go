package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/smsleopard-webhooks/internal/errors"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

type IncomingMessageRepositoryInterface interface {
	Exists(ctx context.Context, providerMessageID string) (bool, error)
	Create(ctx context.Context, rec *model.IncomingMessageRecord) error
	MarkProcessed(ctx context.Context, id int64) error
	MarkProcessedByProviderID(ctx context.Context, providerMessageID string) error
}

type IncomingMessageRepository struct {
	DB *sql.DB
}

const uniqueViolation = "23505"

func (r *IncomingMessageRepository) Exists(ctx context.Context, providerMessageID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM incoming_messages WHERE provider_message_id = $1)`,
		providerMessageID).Scan(&exists)
	return exists, err
}

// Create inserts the record and fills ID and CreatedAt. A second insert for
// the same provider message id returns ErrDuplicateEvent.
func (r *IncomingMessageRepository) Create(ctx context.Context, rec *model.IncomingMessageRecord) error {
	query := `
        INSERT INTO incoming_messages (
            tenant_id, provider_message_id, from_number, to_number, contact_name,
            message_type, content,
            media_id, media_mime_type, media_size, media_sha256, media_filename,
            interactive_type, interactive_id, interactive_title, interactive_description,
            context_message_id, context_campaign_id, sent_at, raw_payload, processed
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
        ON CONFLICT (provider_message_id) DO NOTHING
        RETURNING id, created_at
    `
	var (
		mediaID, mediaMime, mediaSHA, mediaFile sql.NullString
		mediaSize                               sql.NullInt64
		selType, selID, selTitle, selDesc       sql.NullString
		campaignID                              sql.NullInt64
	)
	if m := rec.Media; m != nil {
		mediaID = nullString(m.ID)
		mediaMime = nullString(m.MimeType)
		mediaSHA = nullString(m.SHA256)
		mediaFile = nullString(m.Filename)
		mediaSize = sql.NullInt64{Int64: m.Size, Valid: m.Size > 0}
	}
	if s := rec.Selection; s != nil {
		selType = nullString(s.Type)
		selID = nullString(s.ID)
		selTitle = nullString(s.Title)
		selDesc = nullString(s.Description)
	}
	if rec.ContextCampaignID != nil {
		campaignID = sql.NullInt64{Int64: int64(*rec.ContextCampaignID), Valid: true}
	}
	raw := rec.RawPayload
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	err := r.DB.QueryRowContext(ctx, query,
		rec.TenantID, rec.ProviderMessageID, rec.FromNumber, nullString(rec.ToNumber), nullString(rec.ContactName),
		rec.MessageType, rec.Content,
		mediaID, mediaMime, mediaSize, mediaSHA, mediaFile,
		selType, selID, selTitle, selDesc,
		nullString(rec.ContextMessageID), campaignID, rec.SentAt, []byte(raw), rec.Processed,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrDuplicateEvent
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (r *IncomingMessageRepository) MarkProcessed(ctx context.Context, id int64) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE incoming_messages SET processed = TRUE WHERE id = $1`, id)
	return err
}

// MarkProcessedByProviderID finishes a row whose first attempt stored it but
// failed before marking it processed. Already processed rows are untouched.
func (r *IncomingMessageRepository) MarkProcessedByProviderID(ctx context.Context, providerMessageID string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE incoming_messages SET processed = TRUE WHERE provider_message_id = $1 AND processed = FALSE`,
		providerMessageID)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ IncomingMessageRepositoryInterface = (*IncomingMessageRepository)(nil)
