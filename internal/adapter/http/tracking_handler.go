package http

import (
	"net/http"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

type TrackingHandler struct {
	service interfaces.TrackingService
	logger  logger.Logger
}

func NewTrackingHandler(service interfaces.TrackingService, logger logger.Logger) *TrackingHandler {
	return &TrackingHandler{
		service: service,
		logger:  logger,
	}
}

type StatusLogResponse struct {
	PreviousStatus *domain.Status `json:"previous_status"`
	Status         domain.Status  `json:"status"`
	ChangedBy      string         `json:"changed_by"`
	Timestamp      time.Time      `json:"timestamp"`
	Notes          *string        `json:"notes,omitempty"`
}

func (h *TrackingHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, verrs := idParam(r, "orderID")
	if verrs != nil {
		respondError(w, "Validation failed", http.StatusBadRequest, verrs)
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		respondServiceError(w, r, h.logger, "order_lookup_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, domain.NewOrderView(order))
}

func (h *TrackingHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	orderID, verrs := idParam(r, "orderID")
	if verrs != nil {
		respondError(w, "Validation failed", http.StatusBadRequest, verrs)
		return
	}

	history, err := h.service.GetOrderHistory(r.Context(), orderID)
	if err != nil {
		respondServiceError(w, r, h.logger, "history_lookup_failed", err)
		return
	}

	resp := make([]StatusLogResponse, len(history))
	for i, log := range history {
		resp[i] = StatusLogResponse{
			PreviousStatus: log.PreviousStatus,
			Status:         log.Status,
			ChangedBy:      log.ChangedBy,
			Timestamp:      log.ChangedAt,
			Notes:          log.Notes,
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
