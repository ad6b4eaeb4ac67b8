package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
	"github.com/unclebandit/smsleopard-webhooks/internal/queue"
	"github.com/unclebandit/smsleopard-webhooks/internal/repository"
)

// Replayer re-enqueues audit records that failed reconciliation. Each record
// holds a single reduced event, so a replay never repeats its siblings.
type Replayer struct {
	Audit  repository.AuditRepositoryInterface
	Queue  queue.Publisher
	Logger *zap.Logger
	Now    func() time.Time
}

type ReplayResult struct {
	Found    int
	Replayed int
	Failed   int
}

// Replay publishes up to limit failed records. Republished and unreplayable
// records both leave the backlog; the new delivery writes its own audit row.
// A record whose publish fails stays in the backlog for the next run.
func (r *Replayer) Replay(ctx context.Context, limit int, dryRun bool) (ReplayResult, error) {
	log := logger.OrNop(r.Logger)

	records, err := r.Audit.ListFailed(ctx, limit)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("failed to list failed events: %w", err)
	}
	res := ReplayResult{Found: len(records)}

	for _, rec := range records {
		env, err := ReplayEnvelope(rec, r.now())
		if err != nil {
			res.Failed++
			log.Warn("Skipping unreplayable event", zap.String("audit_id", rec.ID.String()), zap.Error(err))
			if !dryRun {
				reason := "unreplayable: " + err.Error()
				if err := r.Audit.MarkReplayed(ctx, rec.ID, &reason); err != nil {
					log.Warn("Failed to mark unreplayable event", zap.String("audit_id", rec.ID.String()), zap.Error(err))
				}
			}
			continue
		}
		if dryRun {
			log.Info("Would replay event",
				zap.String("audit_id", rec.ID.String()),
				zap.String("category", rec.Category),
				zap.String("provider_message_id", rec.ProviderMessageID),
			)
			continue
		}

		correlationID, err := r.Queue.Publish(ctx, env)
		if err != nil {
			res.Failed++
			log.Error("Replay publish failed", zap.String("audit_id", rec.ID.String()), zap.Error(err))
			continue
		}
		if err := r.Audit.MarkReplayed(ctx, rec.ID, nil); err != nil {
			log.Warn("Failed to mark replayed event", zap.String("audit_id", rec.ID.String()), zap.Error(err))
		}
		res.Replayed++
		log.Info("Event replayed",
			zap.String("audit_id", rec.ID.String()),
			zap.String("correlation_id", correlationID),
		)
	}
	return res, nil
}

func (r *Replayer) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// ReplayEnvelope wraps a stored single-event change in a fresh delivery.
// The account id is not stored, so routing falls back to the channel id.
func ReplayEnvelope(rec *model.AuditRecord, receivedAt time.Time) (*model.WebhookEnvelope, error) {
	var value model.ChangeValue
	if err := json.Unmarshal(rec.RawPayload, &value); err != nil {
		return nil, fmt.Errorf("decode stored payload: %w", err)
	}
	if value.Metadata.PhoneNumberID == "" {
		return nil, fmt.Errorf("stored payload has no phone_number_id")
	}

	payload := &model.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []model.Entry{{
			Changes: []model.Change{{Field: "messages", Value: value}},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &model.WebhookEnvelope{
		Payload:    body,
		Metadata:   model.ExtractMetadata(payload),
		ReceivedAt: receivedAt,
		Headers:    map[string]string{"X-Replay-Of": rec.ID.String()},
	}, nil
}
