package http

import (
	"net/http"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"github.com/go-chi/chi/v5"
)

type RewardHandler struct {
	service interfaces.RewardService
	logger  logger.Logger
}

func NewRewardHandler(service interfaces.RewardService, logger logger.Logger) *RewardHandler {
	return &RewardHandler{
		service: service,
		logger:  logger,
	}
}

func (h *RewardHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.Catalog(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, "catalog_load_failed", err)
		return
	}
	if views == nil {
		views = []domain.RewardView{}
	}
	respondJSON(w, http.StatusOK, views)
}

// Resolve returns one reward. Unknown types are reported as not found, the
// same as missing or inactive rewards.
func (h *RewardHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, verrs := idParam(r, "rewardID")
	if verrs != nil {
		respondError(w, "Validation failed", http.StatusBadRequest, verrs)
		return
	}

	view, err := h.service.ResolveReward(r.Context(), domain.RewardType(chi.URLParam(r, "rewardType")), id)
	if err != nil {
		respondServiceError(w, r, h.logger, "reward_lookup_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
