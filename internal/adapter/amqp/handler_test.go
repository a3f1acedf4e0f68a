package amqp

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/adapter/sqlite"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func broadcast(t *testing.T, channel string) (interfaces.BroadcastDelivery, domain.OrderStatusUpdated) {
	t.Helper()
	order := &domain.Order{ID: 4, Number: "ORD_20260314_004", CustomerID: 7, RestaurantID: 3,
		ServiceType: domain.ServiceTypeDelivery, Status: domain.StatusReady}
	event := domain.NewOrderStatusUpdated(order, domain.StatusPreparing, "kitchen", "", time.Now())
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return interfaces.BroadcastDelivery{
		MessageID: event.EventID.String(),
		EventName: domain.EventOrderStatusUpdated,
		Channel:   channel,
		Body:      body,
	}, event
}

func newInbox(t *testing.T) *sqlite.Inbox {
	t.Helper()
	inbox, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { inbox.Close() })
	return inbox
}

func TestBroadcastHandler_PrintsOncePerChannel(t *testing.T) {
	var out bytes.Buffer
	h := NewBroadcastHandler(newInbox(t), &out, logger.Nop{})
	ctx := context.Background()

	d, _ := broadcast(t, "customer.7.orders")
	require.NoError(t, h.HandleBroadcast(ctx, d))
	require.NoError(t, h.HandleBroadcast(ctx, d))

	restaurant := d
	restaurant.Channel = "restaurant.3.orders"
	require.NoError(t, h.HandleBroadcast(ctx, restaurant))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, "[customer.7.orders] Order ORD_20260314_004: 'preparing' -> 'ready'", string(lines[0]))
	assert.Contains(t, string(lines[1]), "[restaurant.3.orders]")
}

func TestBroadcastHandler_FallsBackToEventID(t *testing.T) {
	var out bytes.Buffer
	inbox := newInbox(t)
	h := NewBroadcastHandler(inbox, &out, logger.Nop{})

	d, event := broadcast(t, "customer.7.orders")
	d.MessageID = ""
	require.NoError(t, h.HandleBroadcast(context.Background(), d))

	n, err := inbox.Count(context.Background(), event.EventID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBroadcastHandler_MalformedPayload(t *testing.T) {
	var out bytes.Buffer
	h := NewBroadcastHandler(newInbox(t), &out, logger.Nop{})

	err := h.HandleBroadcast(context.Background(), interfaces.BroadcastDelivery{
		MessageID: "x", EventName: domain.EventOrderStatusUpdated, Channel: "customer.1.orders", Body: []byte("{"),
	})
	assert.ErrorIs(t, err, interfaces.ErrMalformedMessage)
	assert.Empty(t, out.String())
}

func TestBroadcastHandler_InboxFailureIsRetryable(t *testing.T) {
	var out bytes.Buffer
	inbox := newInbox(t)
	require.NoError(t, inbox.Close())
	h := NewBroadcastHandler(inbox, &out, logger.Nop{})

	d, _ := broadcast(t, "customer.7.orders")
	err := h.HandleBroadcast(context.Background(), d)
	require.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrMalformedMessage)
	assert.Empty(t, out.String())
}

func TestBroadcastHandler_IgnoresOtherEvents(t *testing.T) {
	var out bytes.Buffer
	h := NewBroadcastHandler(newInbox(t), &out, logger.Nop{})

	err := h.HandleBroadcast(context.Background(), interfaces.BroadcastDelivery{
		MessageID: "x", EventName: "menu.updated", Channel: "restaurant.1.orders", Body: []byte("{"),
	})
	assert.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestNotificationHandler(t *testing.T) {
	var out bytes.Buffer
	h := NewNotificationHandler(&out, logger.Nop{})

	body, err := json.Marshal(interfaces.StatusUpdateMessage{
		OrderNumber: "ORD_20260314_004",
		OldStatus:   domain.StatusPending,
		NewStatus:   domain.StatusCancelled,
		Note:        "customer called",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleNotification(context.Background(), body))
	assert.Equal(t,
		"Notification for order ORD_20260314_004: Status changed from 'pending' to 'cancelled' by system\n  note: customer called\n",
		out.String())
}
