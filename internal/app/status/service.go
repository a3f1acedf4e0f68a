// Package status moves orders through their lifecycle and records the
// resulting broadcast and side effects in the outbox.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultActor = "system"

var tracer = otel.Tracer("tablehub/status")

// Waker is notified after a commit that added outbox rows.
type Waker interface {
	Wake()
}

type Service struct {
	orderRepo  interfaces.OrderRepository
	relay      Waker
	logger     logger.Logger
	pointsRate decimal.Decimal
	now        func() time.Time
}

func NewService(orderRepo interfaces.OrderRepository, relay Waker, logger logger.Logger, pointsRate decimal.Decimal) *Service {
	return &Service{
		orderRepo:  orderRepo,
		relay:      relay,
		logger:     logger,
		pointsRate: pointsRate,
		now:        time.Now,
	}
}

// UpdateStatus validates and applies a transition. The status change, its
// log entry, the broadcast and every side effect commit together; the side
// effects themselves run later in the outbox relay, so their failures never
// undo the transition.
func (s *Service) UpdateStatus(ctx context.Context, cmd interfaces.UpdateStatusCommand) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "status.UpdateStatus")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order.id", cmd.OrderID),
		attribute.String("order.new_status", string(cmd.NewStatus)),
	)

	actor := cmd.Actor
	if actor == "" {
		actor = defaultActor
	}
	now := s.now()

	var event domain.OrderStatusUpdated
	order, err := s.orderRepo.UpdateLocked(ctx, cmd.OrderID, func(order *domain.Order) (*interfaces.OrderChange, error) {
		previous := order.Status
		if err := order.TransitionTo(cmd.NewStatus, now); err != nil {
			return nil, err
		}

		event = domain.NewOrderStatusUpdated(order, previous, actor, cmd.Note, now)
		outbox, err := s.sideEffects(order, event, cmd.Notify, now)
		if err != nil {
			return nil, err
		}

		change := &interfaces.OrderChange{
			StatusLog: &domain.StatusLog{
				OrderID:        order.ID,
				PreviousStatus: &previous,
				Status:         order.Status,
				ChangedBy:      actor,
				ChangedAt:      now,
			},
			Outbox: outbox,
		}
		if cmd.Note != "" {
			note := cmd.Note
			change.StatusLog.Notes = &note
		}
		return change, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.relay != nil {
		s.relay.Wake()
	}

	s.logger.Info("order_status_updated", fmt.Sprintf("Order %s moved from %s to %s", order.Number, event.PreviousStatus, event.NewStatus), "", map[string]interface{}{
		"order_id":   order.ID,
		"event_id":   event.EventID.String(),
		"changed_by": actor,
	})

	return order, nil
}

// sideEffects builds the outbox rows for one transition: the broadcast is
// always first, followed by what the new status triggers.
func (s *Service) sideEffects(order *domain.Order, event domain.OrderStatusUpdated, notify interfaces.NotifyOptions, now time.Time) ([]domain.OutboxMessage, error) {
	var (
		messages []domain.OutboxMessage
		err      error
	)
	add := func(kind domain.OutboxKind, payload any) {
		if err != nil {
			return
		}
		var msg domain.OutboxMessage
		if msg, err = domain.NewOutboxMessage(kind, payload, now); err == nil {
			messages = append(messages, msg)
		}
	}

	add(domain.OutboxBroadcastStatusUpdated, event)

	switch order.Status {
	case domain.StatusCompleted:
		if points := order.EarnablePoints(s.pointsRate); points > 0 {
			add(domain.OutboxPointsEarn, domain.PointsEarnPayload{
				CustomerID:  order.CustomerID,
				OrderID:     order.ID,
				Points:      points,
				Description: fmt.Sprintf("Points earned for order %s", order.Number),
			})
		}
	case domain.StatusCancelled:
		add(domain.OutboxHoldsRelease, holdRelease(order, now))
	}

	if notify.Customer {
		add(domain.OutboxCustomerNotification, interfaces.StatusUpdateMessage{
			EventID:      event.EventID.String(),
			OrderID:      order.ID,
			OrderNumber:  order.Number,
			CustomerID:   order.CustomerID,
			RestaurantID: order.RestaurantID,
			OldStatus:    event.PreviousStatus,
			NewStatus:    event.NewStatus,
			ChangedBy:    event.Actor,
			Note:         event.Note,
			Timestamp:    now,
		})
	}

	if err != nil {
		return nil, err
	}
	return messages, nil
}

func holdRelease(order *domain.Order, now time.Time) interfaces.HoldReleaseMessage {
	msg := interfaces.HoldReleaseMessage{
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		Reason:       "order cancelled",
		ReleasedAt:   now,
	}
	for _, item := range order.Items {
		msg.Items = append(msg.Items, interfaces.HoldItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return msg
}
