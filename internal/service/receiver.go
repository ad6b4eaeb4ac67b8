package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/smsleopard-webhooks/internal/errors"
	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
	"github.com/unclebandit/smsleopard-webhooks/internal/queue"
)

const subscribeMode = "subscribe"

// forwardedHeaders are copied from the delivery request into the envelope.
var forwardedHeaders = []string{
	SignatureHeader,
	"User-Agent",
	"Content-Type",
	"X-Forwarded-For",
	"X-Request-Id",
}

// Receiver authenticates provider requests and hands deliveries to the queue.
// It never waits for reconciliation.
type Receiver struct {
	Resolver *TenantResolver
	Queue    queue.Publisher
	Logger   *zap.Logger
	Now      func() time.Time
}

// Verify answers the subscription handshake. It returns the challenge to echo
// when mode is "subscribe" and token belongs to an active tenant.
func (s *Receiver) Verify(ctx context.Context, mode, token, challenge string) (string, error) {
	log := logger.OrNop(s.Logger)
	if mode != subscribeMode {
		log.Warn("Verification rejected: unexpected mode", zap.String("mode", mode))
		return "", appErrors.ErrVerificationRejected
	}
	tenant, err := s.Resolver.ResolveByVerificationToken(ctx, token)
	if err != nil {
		return "", err
	}
	log.Info("Webhook subscription verified", zap.String("tenant_id", tenant.ID.String()))
	return challenge, nil
}

// Receive authenticates a delivery and publishes it. The returned string is
// the queue's correlation id.
func (s *Receiver) Receive(ctx context.Context, body []byte, headers http.Header) (string, error) {
	log := logger.OrNop(s.Logger)

	var payload model.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", appErrors.Malformed(err)
	}
	meta := model.ExtractMetadata(&payload)

	tenant, err := s.Resolver.ResolveByRouting(ctx, meta.AccountID, meta.ChannelID)
	if err != nil {
		return "", err
	}

	if tenant.AppSecret == "" {
		log.Warn("Tenant has no app secret configured, skipping signature check",
			zap.String("tenant_id", tenant.ID.String()))
	} else if !VerifySignature(body, headers.Get(SignatureHeader), tenant.AppSecret) {
		log.Warn("Webhook signature mismatch", zap.String("tenant_id", tenant.ID.String()))
		return "", appErrors.ErrSignatureInvalid
	}

	env := &model.WebhookEnvelope{
		Payload:    json.RawMessage(body),
		Metadata:   meta,
		ReceivedAt: s.now(),
		Headers:    selectHeaders(headers),
	}
	correlationID, err := s.Queue.Publish(ctx, env)
	if err != nil {
		return "", err
	}

	log.Info("Webhook queued",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("correlation_id", correlationID),
		zap.String("event_kind", meta.EventKind),
		zap.Int("message_count", meta.MessageCount),
		zap.Int("status_count", meta.StatusCount),
	)
	return correlationID, nil
}

func (s *Receiver) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func selectHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(forwardedHeaders))
	for _, name := range forwardedHeaders {
		if v := h.Get(name); v != "" {
			out[name] = v
		}
	}
	return out
}
