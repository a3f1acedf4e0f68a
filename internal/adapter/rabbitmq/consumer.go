package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	reconnectDelay = 5 * time.Second
	requeueDelay   = time.Second
)

type consumer struct {
	conn     Connection
	queue    string
	prefetch int
	logger   logger.Logger

	// requeueDelay slows redelivery of messages whose handler failed transiently
	requeueDelay time.Duration
}

// NewConsumer reads broadcasts from the durable queue named queue.
func NewConsumer(conn Connection, queue string, prefetch int, logger logger.Logger) interfaces.MessageConsumer {
	return &consumer{conn: conn, queue: queue, prefetch: prefetch, logger: logger, requeueDelay: requeueDelay}
}

func (c *consumer) ConsumeBroadcasts(ctx context.Context, bindingKey string, handler interfaces.BroadcastHandler) error {
	return c.withReconnect(ctx, "broadcasts", func() error {
		return c.consumeBroadcasts(ctx, bindingKey, handler)
	})
}

func (c *consumer) ConsumeNotifications(ctx context.Context, handler interfaces.NotificationHandler) error {
	return c.withReconnect(ctx, "notifications", func() error {
		return c.consumeNotifications(ctx, handler)
	})
}

func (c *consumer) withReconnect(ctx context.Context, name string, consume func() error) error {
	for {
		err := consume()

		// Если контекст отменен или соединение закрыто намеренно - выходим
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil || errors.Is(err, errConnectionClosed) {
			return err
		}

		c.logger.Error("consumer_disconnected", fmt.Sprintf("%s consumer disconnected, reconnecting in %s", name, reconnectDelay), "", map[string]interface{}{
			"consumer": name,
		}, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *consumer) consumeBroadcasts(ctx context.Context, bindingKey string, handler interfaces.BroadcastHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	// Отслеживаем закрытие канала
	closeChan := ch.NotifyClose()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := c.setupBroadcastQueue(ch, bindingKey); err != nil {
		return err
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			return channelClosed(err)

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("messages channel closed")
			}

			if err := c.settle(ctx, msg, handler(ctx, toDelivery(msg))); err != nil {
				return err
			}
		}
	}
}

// settle acks handled deliveries. Malformed ones go to the DLX so a bad
// message does not loop forever; anything else is requeued.
func (c *consumer) settle(ctx context.Context, msg amqp.Delivery, handleErr error) error {
	if handleErr == nil {
		return msg.Ack(false)
	}

	fields := map[string]interface{}{
		"message_id": msg.MessageId,
		"channel":    msg.RoutingKey,
	}
	if errors.Is(handleErr, interfaces.ErrMalformedMessage) {
		c.logger.Error("broadcast_dead_lettered", "Malformed broadcast sent to DLQ", "", fields, handleErr)
		return msg.Nack(false, false)
	}

	c.logger.Error("broadcast_requeued", "Broadcast handling failed, requeueing", "", fields, handleErr)
	select {
	case <-ctx.Done():
	case <-time.After(c.requeueDelay):
	}
	return msg.Nack(false, true)
}

func (c *consumer) consumeNotifications(ctx context.Context, handler interfaces.NotificationHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	closeChan := ch.NotifyClose()

	if err := declareExchanges(ch); err != nil {
		return err
	}

	// Declare temporary exclusive queue
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", NotificationsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			return channelClosed(err)

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("messages channel closed")
			}

			// Игнорируем ошибки обработки уведомлений
			_ = handler(ctx, msg.Body)
		}
	}
}

func (c *consumer) setupBroadcastQueue(ch Channel, bindingKey string) error {
	if err := declareExchanges(ch); err != nil {
		return err
	}

	dlq := c.queue + "_dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlq, "", BroadcastDLX, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange": BroadcastDLX,
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("failed to declare broadcast queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, bindingKey, BroadcastExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind broadcast queue: %w", err)
	}
	return nil
}

func toDelivery(msg amqp.Delivery) interfaces.BroadcastDelivery {
	d := interfaces.BroadcastDelivery{
		MessageID: msg.MessageId,
		EventName: msg.Type,
		Channel:   msg.RoutingKey,
		Body:      msg.Body,
	}
	if event, ok := msg.Headers["event"].(string); ok && event != "" {
		d.EventName = event
	}
	if channel, ok := msg.Headers["channel"].(string); ok && channel != "" {
		d.Channel = channel
	}
	return d
}

func channelClosed(err *amqp.Error) error {
	if err != nil {
		return fmt.Errorf("channel closed: %w", err)
	}
	return fmt.Errorf("channel closed gracefully")
}
