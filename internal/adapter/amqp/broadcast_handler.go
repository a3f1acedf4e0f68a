package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

// Inbox remembers which (event, channel) deliveries were already handled.
type Inbox interface {
	MarkSeen(ctx context.Context, eventID, channel, eventName string) (bool, error)
}

type BroadcastHandler struct {
	inbox  Inbox
	out    io.Writer
	logger logger.Logger
}

func NewBroadcastHandler(inbox Inbox, out io.Writer, logger logger.Logger) *BroadcastHandler {
	return &BroadcastHandler{
		inbox:  inbox,
		out:    out,
		logger: logger,
	}
}

// HandleBroadcast prints each status change once per channel. Redelivered
// copies are acknowledged without output. Malformed payloads wrap
// interfaces.ErrMalformedMessage; inbox failures do not, so the delivery is
// retried.
func (h *BroadcastHandler) HandleBroadcast(ctx context.Context, d interfaces.BroadcastDelivery) error {
	if d.EventName != "" && d.EventName != domain.EventOrderStatusUpdated {
		h.logger.Debug("broadcast_skipped", fmt.Sprintf("Ignoring event %s", d.EventName), "", map[string]interface{}{
			"event":   d.EventName,
			"channel": d.Channel,
		})
		return nil
	}

	var event domain.OrderStatusUpdated
	if err := json.Unmarshal(d.Body, &event); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse broadcast", "", map[string]interface{}{
			"message_id": d.MessageID,
			"channel":    d.Channel,
		}, err)
		return fmt.Errorf("%w: failed to decode broadcast: %v", interfaces.ErrMalformedMessage, err)
	}

	eventID := d.MessageID
	if eventID == "" {
		eventID = event.EventID.String()
	}

	fresh, err := h.inbox.MarkSeen(ctx, eventID, d.Channel, domain.EventOrderStatusUpdated)
	if err != nil {
		return fmt.Errorf("failed to record broadcast in inbox: %w", err)
	}
	requestID := event.Order.Number
	if !fresh {
		h.logger.Debug("broadcast_duplicate", "Broadcast already handled", requestID, map[string]interface{}{
			"event_id": eventID,
			"channel":  d.Channel,
		})
		return nil
	}

	h.logger.Info("broadcast_received", fmt.Sprintf("Order %s is now %s", event.Order.Number, event.NewStatus), requestID, map[string]interface{}{
		"event_id":        eventID,
		"channel":         d.Channel,
		"previous_status": event.PreviousStatus,
		"new_status":      event.NewStatus,
	})

	fmt.Fprintf(h.out, "[%s] Order %s: '%s' -> '%s'\n", d.Channel, event.Order.Number, event.PreviousStatus, event.NewStatus)
	return nil
}
