package http

import (
	"net/http"
	"strings"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"github.com/go-chi/chi/v5/middleware"
)

type OrderHandler struct {
	orders     interfaces.OrderService
	status     interfaces.StatusService
	promotions interfaces.PromotionService
	logger     logger.Logger
}

func NewOrderHandler(orders interfaces.OrderService, status interfaces.StatusService, promotions interfaces.PromotionService, logger logger.Logger) *OrderHandler {
	return &OrderHandler{
		orders:     orders,
		status:     status,
		promotions: promotions,
		logger:     logger,
	}
}

type CreateOrderRequest struct {
	CustomerID   int64              `json:"customer_id" validate:"required,gt=0"`
	RestaurantID int64              `json:"restaurant_id" validate:"required,gt=0"`
	ServiceType  string             `json:"service_type" validate:"required,oneof=pickup delivery dine_in"`
	Items        []OrderItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
	PromotionIDs []int64            `json:"promotion_ids" validate:"omitempty,max=10,dive,gt=0"`
}

type OrderItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	VariantID *int64          `json:"variant_id,omitempty" validate:"omitempty,gt=0"`
	Name      string          `json:"name" validate:"required,max=100"`
	Quantity  int             `json:"quantity" validate:"required,min=1,max=99"`
	UnitPrice domain.Money    `json:"unit_price" validate:"gt=0"`
	Options   []OptionRequest `json:"options" validate:"omitempty,max=20,dive"`
}

type OptionRequest struct {
	Section       string       `json:"section" validate:"required,max=50"`
	Option        string       `json:"option" validate:"required,max=50"`
	PriceModifier domain.Money `json:"price_modifier" validate:"gte=0"`
}

type UpdateStatusRequest struct {
	Status         string `json:"status" validate:"required,oneof=pending preparing ready out_for_delivery picked_up completed cancelled"`
	Note           string `json:"note" validate:"max=500"`
	Actor          string `json:"actor" validate:"max=100"`
	NotifyCustomer bool   `json:"notify_customer"`
}

type ApplyPromotionRequest struct {
	PromotionID int64 `json:"promotion_id" validate:"required,gt=0"`
}

type ApplyPromotionResponse struct {
	Order    domain.OrderView `json:"order"`
	Applied  bool             `json:"applied"`
	Discount domain.Money     `json:"discount"`
	Reason   string           `json:"reason,omitempty"`
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	cmd := interfaces.PlaceOrderCommand{
		CustomerID:   req.CustomerID,
		RestaurantID: req.RestaurantID,
		ServiceType:  req.ServiceType,
		Items:        convertItemsToCommand(req.Items),
		PromotionIDs: req.PromotionIDs,
	}

	order, err := h.orders.PlaceOrder(r.Context(), cmd)
	if err != nil {
		respondServiceError(w, r, h.logger, "order_creation_failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, domain.NewOrderView(order))
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, verrs := idParam(r, "orderID")
	if verrs != nil {
		respondError(w, "Validation failed", http.StatusBadRequest, verrs)
		return
	}

	var req UpdateStatusRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	order, err := h.status.UpdateStatus(r.Context(), interfaces.UpdateStatusCommand{
		OrderID:   orderID,
		NewStatus: domain.Status(req.Status),
		Note:      strings.TrimSpace(req.Note),
		Actor:     strings.TrimSpace(req.Actor),
		Notify:    interfaces.NotifyOptions{Customer: req.NotifyCustomer},
	})
	if err != nil {
		respondServiceError(w, r, h.logger, "status_update_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, domain.NewOrderView(order))
}

func (h *OrderHandler) ApplyPromotion(w http.ResponseWriter, r *http.Request) {
	orderID, verrs := idParam(r, "orderID")
	if verrs != nil {
		respondError(w, "Validation failed", http.StatusBadRequest, verrs)
		return
	}

	var req ApplyPromotionRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	order, result, err := h.promotions.ApplyPromotion(r.Context(), orderID, req.PromotionID)
	if err != nil {
		respondServiceError(w, r, h.logger, "promotion_apply_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, ApplyPromotionResponse{
		Order:    domain.NewOrderView(order),
		Applied:  result.Applied,
		Discount: result.Discount,
		Reason:   result.Reason,
	})
}

// decodeRequest writes the 400 response itself and reports whether to continue.
func decodeRequest(w http.ResponseWriter, r *http.Request, log logger.Logger, dst any) bool {
	validationErrors, err := decodeAndValidate(r, dst)
	if err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if len(validationErrors) > 0 {
		log.Debug("validation_failed", "Request validation failed", middleware.GetReqID(r.Context()), map[string]interface{}{
			"path":   r.URL.Path,
			"errors": validationErrors,
		})
		respondError(w, "Validation failed", http.StatusBadRequest, validationErrors)
		return false
	}
	return true
}

func convertItemsToCommand(items []OrderItemRequest) []interfaces.PlaceOrderItemCommand {
	result := make([]interfaces.PlaceOrderItemCommand, len(items))
	for i, item := range items {
		options := make([]domain.SelectedOption, len(item.Options))
		for j, opt := range item.Options {
			options[j] = domain.SelectedOption{
				Section:       strings.TrimSpace(opt.Section),
				Option:        strings.TrimSpace(opt.Option),
				PriceModifier: opt.PriceModifier,
			}
		}
		result[i] = interfaces.PlaceOrderItemCommand{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Options:   options,
		}
	}
	return result
}

