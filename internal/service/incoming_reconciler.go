package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/smsleopard-webhooks/internal/errors"
	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
	"github.com/unclebandit/smsleopard-webhooks/internal/repository"
)

type IncomingOutcome string

const (
	OutcomeCreated   IncomingOutcome = "created"
	OutcomeDuplicate IncomingOutcome = "duplicate"
)

// IncomingReconciler records each inbound message once, keyed by its
// provider message id.
type IncomingReconciler struct {
	Incoming repository.IncomingMessageRepositoryInterface
	Messages repository.MessageRepositoryInterface
	Audience repository.CampaignAudienceRepositoryInterface
	Logger   *zap.Logger
}

// Reconcile stores msg for tenant. value supplies the receiving number and
// sender profile. A message seen before is OutcomeDuplicate with a nil error.
func (r *IncomingReconciler) Reconcile(ctx context.Context, tenant *model.Tenant, value model.ChangeValue, msg *model.Message) (IncomingOutcome, *model.IncomingMessageRecord, error) {
	log := logger.OrNop(r.Logger).With(
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("provider_message_id", msg.ID),
	)

	exists, err := r.Incoming.Exists(ctx, msg.ID)
	if err != nil {
		return "", nil, err
	}
	if exists {
		log.Info("Duplicate incoming message ignored")
		return r.duplicate(ctx, msg.ID)
	}

	content := ExtractContent(msg)
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", nil, err
	}

	rec := &model.IncomingMessageRecord{
		TenantID:          tenant.ID,
		ProviderMessageID: msg.ID,
		FromNumber:        msg.From,
		ToNumber:          recipientNumber(value.Metadata),
		ContactName:       contactName(value.Contacts, msg.From),
		MessageType:       msg.Type,
		Content:           content.Text,
		Media:             content.Media,
		Selection:         content.Selection,
		RawPayload:        raw,
	}
	if ts := model.ParseProviderTimestamp(msg.Timestamp); !ts.IsZero() {
		rec.SentAt = &ts
	}
	if msg.Context != nil && msg.Context.ID != "" {
		rec.ContextMessageID = msg.Context.ID
		rec.ContextCampaignID = r.resolveContext(ctx, log, msg.Context.ID)
	}

	if err := r.Incoming.Create(ctx, rec); err != nil {
		if errors.Is(err, appErrors.ErrDuplicateEvent) {
			log.Info("Incoming message inserted concurrently, treating as duplicate")
			return r.duplicate(ctx, msg.ID)
		}
		return "", nil, err
	}

	if err := r.Incoming.MarkProcessed(ctx, rec.ID); err != nil {
		return OutcomeCreated, rec, err
	}
	rec.Processed = true

	log.Info("Incoming message stored",
		zap.String("message_type", rec.MessageType),
		zap.Bool("has_context_campaign", rec.ContextCampaignID != nil),
	)
	return OutcomeCreated, rec, nil
}

// duplicate completes a row left unprocessed by an earlier attempt, so a
// redelivery after a failed MarkProcessed still converges.
func (r *IncomingReconciler) duplicate(ctx context.Context, providerMessageID string) (IncomingOutcome, *model.IncomingMessageRecord, error) {
	if err := r.Incoming.MarkProcessedByProviderID(ctx, providerMessageID); err != nil {
		return OutcomeDuplicate, nil, err
	}
	return OutcomeDuplicate, nil, nil
}

// resolveContext finds the campaign that sent the message being replied to.
// Lookup failures leave the context empty.
func (r *IncomingReconciler) resolveContext(ctx context.Context, log *zap.Logger, contextID string) *int {
	if r.Messages != nil {
		entry, err := r.Messages.GetByProviderMessageID(ctx, contextID)
		if err != nil {
			log.Warn("Reply context lookup failed", zap.String("context_message_id", contextID), zap.Error(err))
		} else if entry != nil && entry.CampaignID != nil {
			id := *entry.CampaignID
			return &id
		}
	}
	if r.Audience != nil {
		entry, err := r.Audience.GetByProviderMessageID(ctx, contextID)
		if err != nil {
			log.Warn("Reply context audience lookup failed", zap.String("context_message_id", contextID), zap.Error(err))
		} else if entry != nil {
			id := entry.CampaignID
			return &id
		}
	}
	return nil
}

func recipientNumber(meta model.ChangeMetadata) string {
	if meta.DisplayPhoneNumber != "" {
		return meta.DisplayPhoneNumber
	}
	return meta.PhoneNumberID
}

func contactName(contacts []model.Contact, from string) string {
	for _, c := range contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	if len(contacts) == 1 {
		return contacts[0].Profile.Name
	}
	return ""
}
