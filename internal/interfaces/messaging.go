package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/domain"
)

// Сообщения RabbitMQ
type StatusUpdateMessage struct {
	EventID      string        `json:"event_id"`
	OrderID      int64         `json:"order_id"`
	OrderNumber  string        `json:"order_number"`
	CustomerID   int64         `json:"customer_id"`
	RestaurantID int64         `json:"restaurant_id"`
	OldStatus    domain.Status `json:"old_status"`
	NewStatus    domain.Status `json:"new_status"`
	ChangedBy    string        `json:"changed_by"`
	Note         string        `json:"note,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

type HoldReleaseMessage struct {
	OrderID      int64      `json:"order_id"`
	RestaurantID int64      `json:"restaurant_id"`
	Reason       string     `json:"reason"`
	Items        []HoldItem `json:"items"`
	ReleasedAt   time.Time  `json:"released_at"`
}

type HoldItem struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

// BroadcastDelivery is one received copy of a broadcast event.
type BroadcastDelivery struct {
	MessageID string
	EventName string
	Channel   string
	Body      []byte
}

// Интерфейсы Messaging (Adapter/RabbitMQ)
type MessagePublisher interface {
	// BroadcastStatusUpdate delivers the event on each of its channels.
	BroadcastStatusUpdate(ctx context.Context, event domain.OrderStatusUpdated) error
	PublishStatusUpdate(ctx context.Context, msg StatusUpdateMessage) error
	PublishHoldRelease(ctx context.Context, msg HoldReleaseMessage) error
}

type MessageConsumer interface {
	ConsumeBroadcasts(ctx context.Context, bindingKey string, handler BroadcastHandler) error
	ConsumeNotifications(ctx context.Context, handler NotificationHandler) error
}

// ErrMalformedMessage marks a delivery that no retry can handle. Handlers wrap
// it so the consumer dead-letters the delivery; any other error requeues it.
var ErrMalformedMessage = errors.New("malformed message")

type BroadcastHandler func(ctx context.Context, delivery BroadcastDelivery) error

type NotificationHandler func(ctx context.Context, body []byte) error
