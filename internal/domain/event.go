package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventOrderStatusUpdated is the broadcast name of OrderStatusUpdated.
const EventOrderStatusUpdated = "order.status.updated"

func CustomerOrdersChannel(customerID int64) string {
	return fmt.Sprintf("customer.%d.orders", customerID)
}

func RestaurantOrdersChannel(restaurantID int64) string {
	return fmt.Sprintf("restaurant.%d.orders", restaurantID)
}

// OrderView is the order representation carried in events and API responses.
type OrderView struct {
	ID                int64              `json:"id"`
	Number            string             `json:"number"`
	CustomerID        int64              `json:"customer_id"`
	RestaurantID      int64              `json:"restaurant_id"`
	ServiceType       ServiceType        `json:"service_type"`
	Status            Status             `json:"status"`
	PreviousStatus    *Status            `json:"previous_status,omitempty"`
	Subtotal          Money              `json:"subtotal"`
	Discount          Money              `json:"discount"`
	PointsCredit      Money              `json:"points_credit"`
	Total             Money              `json:"total"`
	Items             []OrderItemView    `json:"items,omitempty"`
	AppliedPromotions []AppliedPromotion `json:"applied_promotions,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

type OrderItemView struct {
	ProductID int64            `json:"product_id"`
	VariantID *int64           `json:"variant_id,omitempty"`
	Name      string           `json:"name"`
	Quantity  int              `json:"quantity"`
	UnitPrice Money            `json:"unit_price"`
	LineTotal Money            `json:"line_total"`
	Options   []SelectedOption `json:"options,omitempty"`
}

func NewOrderView(o *Order) OrderView {
	view := OrderView{
		ID:                o.ID,
		Number:            o.Number,
		CustomerID:        o.CustomerID,
		RestaurantID:      o.RestaurantID,
		ServiceType:       o.ServiceType,
		Status:            o.Status,
		PreviousStatus:    o.PreviousStatus,
		Subtotal:          o.Subtotal,
		Discount:          o.Discount,
		PointsCredit:      o.PointsCredit,
		Total:             o.Total,
		AppliedPromotions: o.AppliedPromotions,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	for _, item := range o.Items {
		view.Items = append(view.Items, OrderItemView{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
			Options:   item.Options,
		})
	}
	return view
}

// OrderStatusUpdated is emitted once for every accepted status change.
type OrderStatusUpdated struct {
	EventID        uuid.UUID `json:"event_id"`
	Order          OrderView `json:"order"`
	PreviousStatus Status    `json:"previous_status"`
	NewStatus      Status    `json:"new_status"`
	Actor          string    `json:"actor,omitempty"`
	Note           string    `json:"note,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func NewOrderStatusUpdated(o *Order, previous Status, actor, note string, at time.Time) OrderStatusUpdated {
	return OrderStatusUpdated{
		EventID:        uuid.New(),
		Order:          NewOrderView(o),
		PreviousStatus: previous,
		NewStatus:      o.Status,
		Actor:          actor,
		Note:           note,
		OccurredAt:     at,
	}
}

func (e OrderStatusUpdated) EventName() string {
	return EventOrderStatusUpdated
}

// Channels lists the private channels the event is delivered on: the
// customer's and the restaurant's.
func (e OrderStatusUpdated) Channels() []string {
	return []string{
		CustomerOrdersChannel(e.Order.CustomerID),
		RestaurantOrdersChannel(e.Order.RestaurantID),
	}
}
