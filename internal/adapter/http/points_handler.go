package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

const idempotencyHeader = "Idempotency-Key"

type PointsHandler struct {
	service interfaces.PointsService
	logger  logger.Logger
}

func NewPointsHandler(service interfaces.PointsService, logger logger.Logger) *PointsHandler {
	return &PointsHandler{
		service: service,
		logger:  logger,
	}
}

type RedeemRequest struct {
	OrderID        int64 `json:"order_id" validate:"required,gt=0"`
	PointsToRedeem int64 `json:"points_to_redeem" validate:"required,gte=1"`
}

type RedeemResponse struct {
	Transaction domain.PointsTransaction `json:"transaction"`
	Balance     domain.Balance           `json:"balance"`
}

type HistoryResponse struct {
	Transactions []domain.PointsTransaction `json:"transactions"`
	Limit        int                        `json:"limit"`
	Offset       int                        `json:"offset"`
}

func (h *PointsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	customerID, verrs := idParam(r, "customerID")
	if verrs != nil {
		respondError(w, "Validation failed", http.StatusBadRequest, verrs)
		return
	}

	balance, err := h.service.Balance(r.Context(), customerID)
	if err != nil {
		respondServiceError(w, r, h.logger, "balance_lookup_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

func (h *PointsHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	customerID, verrs := idParam(r, "customerID")
	if verrs != nil {
		respondError(w, "Validation failed", http.StatusBadRequest, verrs)
		return
	}

	limit, offset, verrs := pagination(r)
	if verrs != nil {
		respondError(w, "Validation failed", http.StatusBadRequest, verrs)
		return
	}

	txs, err := h.service.History(r.Context(), customerID, limit, offset)
	if err != nil {
		respondServiceError(w, r, h.logger, "history_lookup_failed", err)
		return
	}
	if txs == nil {
		txs = []domain.PointsTransaction{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Transactions: txs, Limit: limit, Offset: offset})
}

// Redeem applies points to a pending order. Repeating a request with the
// same Idempotency-Key returns the first result with 200 instead of 201.
func (h *PointsHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	customerID, verrs := idParam(r, "customerID")
	if verrs != nil {
		respondError(w, "Validation failed", http.StatusBadRequest, verrs)
		return
	}

	var req RedeemRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if len(key) > 200 {
		respondError(w, "Validation failed", http.StatusBadRequest, []ValidationError{
			{Field: idempotencyHeader, Message: "Idempotency-Key must not exceed 200 characters"},
		})
		return
	}

	outcome, err := h.service.Redeem(r.Context(), interfaces.RedeemCommand{
		CustomerID:     customerID,
		OrderID:        req.OrderID,
		Points:         req.PointsToRedeem,
		IdempotencyKey: key,
	})
	if err != nil {
		respondServiceError(w, r, h.logger, "redemption_failed", err)
		return
	}

	status := http.StatusCreated
	if outcome.Replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	respondJSON(w, status, RedeemResponse{Transaction: outcome.Transaction, Balance: outcome.Balance})
}

// pagination reads limit and offset; the service clamps limit further.
func pagination(r *http.Request) (int, int, []ValidationError) {
	var (
		limit, offset int
		errs          []ValidationError
	)
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			errs = append(errs, ValidationError{Field: "limit", Message: "limit must be between 1 and 100"})
		}
		limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs = append(errs, ValidationError{Field: "offset", Message: "offset must not be negative"})
		}
		offset = n
	}
	if limit == 0 {
		limit = 20
	}
	return limit, offset, errs
}
