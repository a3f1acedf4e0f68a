package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

// Earner credits loyalty points. points.Service satisfies it.
type Earner interface {
	Earn(ctx context.Context, customerID, points int64, ref domain.Reference, description string) (*domain.PointsTransaction, bool, error)
}

// UsageReleaser frees the promotion usages held by an order.
type UsageReleaser interface {
	ReleaseUsages(ctx context.Context, orderID int64) (int64, error)
}

// RegisterHandlers wires every outbox kind to the component that executes it.
func RegisterHandlers(r *Relay, publisher interfaces.MessagePublisher, earner Earner, usages UsageReleaser) {
	r.Handle(domain.OutboxBroadcastStatusUpdated, func(ctx context.Context, msg domain.OutboxMessage) error {
		var event domain.OrderStatusUpdated
		if err := decode(msg, &event); err != nil {
			return err
		}
		return publisher.BroadcastStatusUpdate(ctx, event)
	})

	r.Handle(domain.OutboxCustomerNotification, func(ctx context.Context, msg domain.OutboxMessage) error {
		var notification interfaces.StatusUpdateMessage
		if err := decode(msg, &notification); err != nil {
			return err
		}
		return publisher.PublishStatusUpdate(ctx, notification)
	})

	r.Handle(domain.OutboxPointsEarn, func(ctx context.Context, msg domain.OutboxMessage) error {
		var payload domain.PointsEarnPayload
		if err := decode(msg, &payload); err != nil {
			return err
		}
		_, _, err := earner.Earn(ctx, payload.CustomerID, payload.Points, domain.OrderReference(payload.OrderID), payload.Description)
		return err
	})

	r.Handle(domain.OutboxHoldsRelease, func(ctx context.Context, msg domain.OutboxMessage) error {
		var release interfaces.HoldReleaseMessage
		if err := decode(msg, &release); err != nil {
			return err
		}
		if _, err := usages.ReleaseUsages(ctx, release.OrderID); err != nil {
			return fmt.Errorf("failed to release promotion usages: %w", err)
		}
		return publisher.PublishHoldRelease(ctx, release)
	})
}

func decode(msg domain.OutboxMessage, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", msg.Kind, err)
	}
	return nil
}
