package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

type AuditRepositoryInterface interface {
	Create(ctx context.Context, rec *model.AuditRecord) error
	MarkProcessed(ctx context.Context, id uuid.UUID, errText *string) error
	ListFailed(ctx context.Context, limit int) ([]*model.AuditRecord, error)
	MarkReplayed(ctx context.Context, id uuid.UUID, replayErr *string) error
}

// AuditRepository writes the append-only webhook_events log. Rows are never
// deleted; only the outcome and replay columns change after insert.
type AuditRepository struct {
	DB *sql.DB
}

func (r *AuditRepository) Create(ctx context.Context, rec *model.AuditRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	raw := rec.RawPayload
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var tenantID interface{}
	if rec.TenantID != nil {
		tenantID = *rec.TenantID
	}
	query := `
        INSERT INTO webhook_events (id, tenant_id, category, provider_message_id, status, event_timestamp, raw_payload, processed)
        VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
        RETURNING created_at
    `
	return r.DB.QueryRowContext(ctx, query,
		rec.ID, tenantID, rec.Category, nullString(rec.ProviderMessageID), nullString(rec.Status),
		rec.EventTimestamp, []byte(raw),
	).Scan(&rec.CreatedAt)
}

// MarkProcessed closes an audit record. Failed attempts are closed too, with
// their error text attached; a nil errText means success.
func (r *AuditRepository) MarkProcessed(ctx context.Context, id uuid.UUID, errText *string) error {
	var e sql.NullString
	if errText != nil {
		e = sql.NullString{String: *errText, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		`UPDATE webhook_events SET processed = TRUE, error = $2, processed_at = $3 WHERE id = $1`,
		id, e, time.Now().UTC())
	return err
}

// ListFailed returns records that carry an error and have not been handled by
// a replay yet, oldest first.
func (r *AuditRepository) ListFailed(ctx context.Context, limit int) ([]*model.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
        SELECT id, tenant_id, category, provider_message_id, status, event_timestamp,
               raw_payload, processed, error, created_at, processed_at
        FROM webhook_events
        WHERE error IS NOT NULL AND replayed_at IS NULL
        ORDER BY created_at ASC
        LIMIT $1
    `
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*model.AuditRecord{}
	for rows.Next() {
		var (
			rec        model.AuditRecord
			tenantID   uuid.NullUUID
			providerID sql.NullString
			status     sql.NullString
			errText    sql.NullString
			raw        []byte
		)
		if err := rows.Scan(&rec.ID, &tenantID, &rec.Category, &providerID, &status, &rec.EventTimestamp,
			&raw, &rec.Processed, &errText, &rec.CreatedAt, &rec.ProcessedAt); err != nil {
			return nil, err
		}
		if tenantID.Valid {
			id := tenantID.UUID
			rec.TenantID = &id
		}
		rec.ProviderMessageID = providerID.String
		rec.Status = status.String
		rec.RawPayload = raw
		if errText.Valid {
			rec.Error = &errText.String
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// MarkReplayed takes a record out of the replay backlog. The original error
// text is kept; replayErr records why a row could not be replayed.
func (r *AuditRepository) MarkReplayed(ctx context.Context, id uuid.UUID, replayErr *string) error {
	var e sql.NullString
	if replayErr != nil {
		e = sql.NullString{String: *replayErr, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		`UPDATE webhook_events SET replayed_at = $2, replay_error = $3 WHERE id = $1`,
		id, time.Now().UTC(), e)
	return err
}

var _ AuditRepositoryInterface = (*AuditRepository)(nil)
