package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

type NotificationHandler struct {
	out    io.Writer
	logger logger.Logger
}

func NewNotificationHandler(out io.Writer, logger logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		out:    out,
		logger: logger,
	}
}

func (h *NotificationHandler) HandleNotification(ctx context.Context, body []byte) error {
	var msg interfaces.StatusUpdateMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse notification", "", nil, err)
		return err
	}

	h.logger.Debug("notification_received", fmt.Sprintf("Received status update for order %s", msg.OrderNumber),
		msg.OrderNumber, map[string]interface{}{
			"order_number": msg.OrderNumber,
			"new_status":   msg.NewStatus,
		})

	changedBy := msg.ChangedBy
	if changedBy == "" {
		changedBy = "system"
	}
	fmt.Fprintf(h.out, "Notification for order %s: Status changed from '%s' to '%s' by %s\n",
		msg.OrderNumber, msg.OldStatus, msg.NewStatus, changedBy)
	if msg.Note != "" {
		fmt.Fprintf(h.out, "  note: %s\n", msg.Note)
	}

	return nil
}
