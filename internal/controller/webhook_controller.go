// internal/controller/webhook_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/smsleopard-webhooks/internal/errors"
	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/metrics"
	"github.com/unclebandit/smsleopard-webhooks/internal/service"
)

type WebhookController struct {
	Receiver     *service.Receiver
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// Verify handles GET /webhooks/whatsapp.
func (c *WebhookController) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := firstParam(q.Get("hub.mode"), q.Get("mode"))
	token := firstParam(q.Get("hub.verify_token"), q.Get("verify_token"))
	challenge := firstParam(q.Get("hub.challenge"), q.Get("challenge"))

	echo, err := c.Receiver.Verify(r.Context(), mode, token, challenge)
	if err != nil {
		if isAuthError(err) {
			metrics.WebhooksReceivedTotal.WithLabelValues("verify_forbidden").Inc()
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		logger.OrNop(c.Logger).Error("Verification failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	metrics.WebhooksReceivedTotal.WithLabelValues("verified").Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, echo)
}

// Receive handles POST /webhooks/whatsapp.
func (c *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	log := logger.OrNop(c.Logger)

	reader := io.Reader(r.Body)
	if c.MaxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, c.MaxBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		log.Error("Failed to read webhook body", zap.Error(err))
		metrics.WebhooksReceivedTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	correlationID, err := c.Receiver.Receive(r.Context(), body, r.Header)
	if err != nil {
		if isAuthError(err) {
			metrics.WebhooksReceivedTotal.WithLabelValues("forbidden").Inc()
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		if errors.Is(err, appErrors.ErrMalformedPayload) {
			log.Warn("Malformed webhook payload", zap.Error(err))
		} else {
			log.Error("Failed to queue webhook", zap.Error(err))
		}
		metrics.WebhooksReceivedTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	metrics.WebhooksReceivedTotal.WithLabelValues("queued").Inc()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "queued",
		"correlation_id": correlationID,
	})
}

func isAuthError(err error) bool {
	return errors.Is(err, appErrors.ErrTenantNotFound) ||
		errors.Is(err, appErrors.ErrSignatureInvalid) ||
		errors.Is(err, appErrors.ErrVerificationRejected)
}

func firstParam(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
