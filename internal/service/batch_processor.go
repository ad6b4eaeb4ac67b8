package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/smsleopard-webhooks/internal/errors"
	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/metrics"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
	"github.com/unclebandit/smsleopard-webhooks/internal/queue"
	"github.com/unclebandit/smsleopard-webhooks/internal/repository"
)

const auditCloseTimeout = 5 * time.Second

// BatchProcessor turns queued envelopes into reconciled state. Items are
// independent: one failing item never affects another in the same batch.
type BatchProcessor struct {
	Resolver    *TenantResolver
	Audit       repository.AuditRepositoryInterface
	Statuses    *StatusReconciler
	Incoming    *IncomingReconciler
	ItemTimeout time.Duration
	Concurrency int
	Logger      *zap.Logger
}

// ProcessBatch returns the ids of items that should be redelivered, in input
// order. It satisfies queue.BatchHandler.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, items []queue.Item) queue.BatchResult {
	start := time.Now()
	defer func() { metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	log := logger.OrNop(p.Logger)
	failed := make([]bool, len(items))

	var g errgroup.Group
	limit := p.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i := range items {
		i := i
		g.Go(func() error {
			if err := p.processWithTimeout(ctx, items[i]); err != nil {
				failed[i] = true
				log.Error("Queue item failed",
					zap.String("item_id", items[i].ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	var result queue.BatchResult
	for i, f := range failed {
		if f {
			result.FailedItemIDs = append(result.FailedItemIDs, items[i].ID)
			metrics.BatchItemsTotal.WithLabelValues("failed").Inc()
		} else {
			metrics.BatchItemsTotal.WithLabelValues("succeeded").Inc()
		}
	}

	log.Info("Batch processed",
		zap.Int("items", len(items)),
		zap.Int("failed", len(result.FailedItemIDs)),
		zap.Duration("duration", time.Since(start)),
	)
	return result
}

func (p *BatchProcessor) processWithTimeout(ctx context.Context, item queue.Item) error {
	if p.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.ItemTimeout)
		defer cancel()
	}
	err := p.ProcessItem(ctx, item)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("item abandoned: %w", ctx.Err())
	}
	return err
}

// ProcessItem decodes one envelope, re-resolves its tenant and reconciles
// every event in it. All events are attempted; their errors are joined.
func (p *BatchProcessor) ProcessItem(ctx context.Context, item queue.Item) error {
	var env model.WebhookEnvelope
	if err := json.Unmarshal(item.Body, &env); err != nil {
		return appErrors.Malformed(err)
	}
	var payload model.WebhookPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return appErrors.Malformed(err)
	}

	tenant, err := p.Resolver.ResolveByRouting(ctx, env.Metadata.AccountID, env.Metadata.ChannelID)
	if err != nil {
		return err
	}

	var errs []error
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, ev := range Classify(change) {
				if err := p.processEvent(ctx, tenant, ev); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// processEvent brackets reconciliation with an audit record. The record is
// written before any ledger change and is always closed, with the error text
// when reconciliation fails.
func (p *BatchProcessor) processEvent(ctx context.Context, tenant *model.Tenant, ev Event) error {
	log := logger.OrNop(p.Logger)

	rec := &model.AuditRecord{
		TenantID:          &tenant.ID,
		Category:          ev.Category,
		ProviderMessageID: ev.ProviderMessageID,
		Status:            ev.Status,
		RawPayload:        ev.RawPayload(),
	}
	if !ev.Timestamp.IsZero() {
		ts := ev.Timestamp
		rec.EventTimestamp = &ts
	}
	if err := p.Audit.Create(ctx, rec); err != nil {
		metrics.EventsProcessedTotal.WithLabelValues(ev.Category, "error").Inc()
		return fmt.Errorf("create audit record: %w", err)
	}

	outcome, err := p.reconcile(ctx, tenant, ev)

	var errText *string
	if err != nil {
		msg := err.Error()
		errText = &msg
		outcome = "error"
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditCloseTimeout)
	defer cancel()
	if closeErr := p.Audit.MarkProcessed(closeCtx, rec.ID, errText); closeErr != nil {
		log.Error("Failed to close audit record",
			zap.String("audit_id", rec.ID.String()),
			zap.Error(closeErr),
		)
		if err == nil {
			err = fmt.Errorf("close audit record: %w", closeErr)
		}
	}

	metrics.EventsProcessedTotal.WithLabelValues(ev.Category, outcome).Inc()
	return err
}

func (p *BatchProcessor) reconcile(ctx context.Context, tenant *model.Tenant, ev Event) (string, error) {
	switch ev.Category {
	case model.CategoryStatus:
		res, err := p.Statuses.Reconcile(ctx, tenant, ev.StatusEvent)
		if err != nil {
			return "", err
		}
		if res.Skipped {
			return "skipped", nil
		}
		return "applied", nil

	case model.CategoryMessage:
		outcome, _, err := p.Incoming.Reconcile(ctx, tenant, ev.Value, ev.MessageEvent)
		if err != nil {
			return "", err
		}
		return string(outcome), nil

	default:
		logger.OrNop(p.Logger).Info("Unsupported change recorded",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("field", ev.Status),
		)
		return "skipped", nil
	}
}
