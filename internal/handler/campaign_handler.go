// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/smsleopard-webhooks/internal/errors"
	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/repository"
)

// CampaignHandler exposes the delivery counters maintained by the status
// reconciler. It is read-only.
type CampaignHandler struct {
	Repo   repository.CampaignRepositoryInterface
	Logger *zap.Logger
}

// GetCampaignStats returns a campaign with its stored counters.
func (h *CampaignHandler) GetCampaignStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	campaign, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			http.Error(w, notFound.Error(), http.StatusNotFound)
			return
		}
		logger.OrNop(h.Logger).Error("Failed to fetch campaign", zap.Int("campaign_id", id), zap.Error(err))
		http.Error(w, "failed to fetch campaign", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaign)
}

// RecomputeCampaignStats rebuilds the counters from campaign_audience and
// returns them. Useful after a manual data repair.
func (h *CampaignHandler) RecomputeCampaignStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	stats, err := h.Repo.RecomputeStats(r.Context(), id)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			http.Error(w, notFound.Error(), http.StatusNotFound)
			return
		}
		logger.OrNop(h.Logger).Error("Failed to recompute campaign stats", zap.Int("campaign_id", id), zap.Error(err))
		http.Error(w, "failed to recompute stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
