package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/smsleopard-webhooks/internal/errors"
	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
	"github.com/unclebandit/smsleopard-webhooks/internal/repository"
)

// StatusReconciler applies delivery statuses to the message ledger and the
// campaign audience. Each table commits independently; a redelivered status
// re-applies cleanly because state only moves forward.
type StatusReconciler struct {
	Messages  repository.MessageRepositoryInterface
	Audience  repository.CampaignAudienceRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Logger    *zap.Logger
	Now       func() time.Time
}

// StatusResult reports what a single status touched.
type StatusResult struct {
	Skipped         bool
	LedgerMatched   bool
	AudienceMatched bool
	CampaignID      *int
	Stats           *model.CampaignStats
}

func (r *StatusReconciler) Reconcile(ctx context.Context, tenant *model.Tenant, st *model.Status) (*StatusResult, error) {
	if tenant == nil {
		return nil, errors.New("status reconcile: tenant required")
	}
	log := logger.OrNop(r.Logger).With(
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("provider_message_id", st.ID),
		zap.String("status", st.Status),
	)

	if _, ok := model.StatusRank(st.Status); !ok {
		log.Info("Skipping untracked status")
		return &StatusResult{Skipped: true}, nil
	}

	update := model.StatusUpdate{
		TenantID:          tenant.ID,
		ProviderMessageID: st.ID,
		Status:            st.Status,
		Timestamp:         model.ParseProviderTimestamp(st.Timestamp),
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = r.now()
	}
	if st.Status == model.StatusFailed {
		update.FailureReason = FailureReason(st.Errors)
	}

	result := &StatusResult{}
	var errs []error

	entry, err := r.Messages.ApplyStatus(ctx, update)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("messages: %w", err))
	case entry == nil:
		log.Info("No message ledger row for status")
	default:
		result.LedgerMatched = true
	}

	audience, err := r.Audience.ApplyStatus(ctx, update)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("campaign_audience: %w", err))
	case audience == nil:
		log.Info("No campaign audience row for status")
	default:
		result.AudienceMatched = true
		campaignID := audience.CampaignID
		result.CampaignID = &campaignID

		stats, err := r.Campaigns.RecomputeStats(ctx, campaignID)
		var notFound *appErrors.ErrCampaignNotFound
		switch {
		case errors.As(err, &notFound):
			log.Warn("Audience row references a missing campaign", zap.Int("campaign_id", campaignID))
		case err != nil:
			errs = append(errs, fmt.Errorf("campaign %d stats: %w", campaignID, err))
		default:
			result.Stats = stats
		}
	}

	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	log.Debug("Status reconciled",
		zap.Bool("ledger_matched", result.LedgerMatched),
		zap.Bool("audience_matched", result.AudienceMatched),
	)
	return result, nil
}

func (r *StatusReconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// FailureReason flattens provider errors into "code: title - message" parts
// joined by "; ". error_data.details stands in for an empty message.
func FailureReason(errs []model.ProviderError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		part := fmt.Sprintf("%d: %s", e.Code, e.Title)
		msg := e.Message
		if msg == "" && e.ErrorData != nil {
			msg = e.ErrorData.Details
		}
		if msg != "" {
			part += " - " + msg
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}
