package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker/v2"
)

// ErrBrokerUnavailable is returned while the circuit breaker is open.
var ErrBrokerUnavailable = errors.New("message broker unavailable")

type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

var DefaultBreaker = BreakerConfig{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}

type publisher struct {
	conn    Connection
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  logger.Logger
}

// NewPublisher publishes through a circuit breaker, so a dead broker fails
// outbox deliveries fast instead of blocking each one on a dial.
func NewPublisher(conn Connection, logger logger.Logger, cfg BreakerConfig) interfaces.MessagePublisher {
	p := &publisher{conn: conn, logger: logger}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "rabbitmq-publisher",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Info("breaker_state_changed", fmt.Sprintf("Circuit breaker %s: %s -> %s", name, from, to), "", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return p
}

// BroadcastStatusUpdate publishes the event once per private channel. Both
// copies carry the event id as MessageId so subscribers can drop repeats.
func (p *publisher) BroadcastStatusUpdate(ctx context.Context, event domain.OrderStatusUpdated) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return p.publish(func(ch Channel) error {
		for _, channel := range event.Channels() {
			err := ch.Publish(ctx, BroadcastExchange, channel, false, false, amqp.Publishing{
				DeliveryMode: amqp.Persistent,
				ContentType:  "application/json",
				MessageId:    event.EventID.String(),
				Type:         event.EventName(),
				Timestamp:    event.OccurredAt,
				Headers: amqp.Table{
					"event":   event.EventName(),
					"channel": channel,
				},
				Body: body,
			})
			if err != nil {
				return fmt.Errorf("failed to publish to %s: %w", channel, err)
			}
		}
		return nil
	})
}

func (p *publisher) PublishStatusUpdate(ctx context.Context, msg interfaces.StatusUpdateMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return p.publish(func(ch Channel) error {
		err := ch.Publish(ctx, NotificationsExchange, "", false, false, amqp.Publishing{
			ContentType: "application/json",
			MessageId:   msg.EventID,
			Body:        body,
		})
		if err != nil {
			return fmt.Errorf("failed to publish message: %w", err)
		}
		return nil
	})
}

func (p *publisher) PublishHoldRelease(ctx context.Context, msg interfaces.HoldReleaseMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return p.publish(func(ch Channel) error {
		err := ch.Publish(ctx, HoldsExchange, HoldsReleaseKey, false, false, amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("failed to publish hold release: %w", err)
		}
		return nil
	})
}

func (p *publisher) publish(send func(ch Channel) error) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		ch, err := p.conn.Channel()
		if err != nil {
			return struct{}{}, err
		}
		defer ch.Close()

		if err := declareExchanges(ch); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, send(ch)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return err
}
