// Package outbox executes side effects that were committed as outbox rows.
// Delivery is at-least-once; handlers must tolerate repeats.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const baseBackoff = time.Second

var tracer = otel.Tracer("tablehub/outbox")

// Handler executes one message. A returned error schedules a retry.
type Handler func(ctx context.Context, msg domain.OutboxMessage) error

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Lease        time.Duration
	MaxBackoff   time.Duration
}

type Relay struct {
	repo     interfaces.OutboxRepository
	handlers map[domain.OutboxKind]Handler
	logger   logger.Logger
	cfg      Config
	wake     chan struct{}
	now      func() time.Time
}

func NewRelay(repo interfaces.OutboxRepository, logger logger.Logger, cfg Config) *Relay {
	return &Relay{
		repo:     repo,
		handlers: make(map[domain.OutboxKind]Handler),
		logger:   logger,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Handle registers the handler for a kind. It must be called before Run.
func (r *Relay) Handle(kind domain.OutboxKind, h Handler) {
	r.handlers[kind] = h
}

// Wake asks a running relay to process a batch now. It never blocks.
func (r *Relay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox_relay_started", "Outbox relay started", "", map[string]interface{}{
		"poll_interval": r.cfg.PollInterval.String(),
		"batch_size":    r.cfg.BatchSize,
	})

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox_relay_stopped", "Outbox relay stopped", "", nil)
			return
		case <-ticker.C:
		case <-r.wake:
		}

		// drain full batches before waiting again
		for {
			n, err := r.ProcessBatch(ctx)
			if err != nil {
				r.logger.Error("outbox_claim_failed", "Failed to claim outbox messages", "", nil, err)
				break
			}
			if n < r.cfg.BatchSize || ctx.Err() != nil {
				break
			}
		}
	}
}

// ProcessBatch claims due messages and dispatches each one. It returns how
// many messages were claimed.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "outbox.ProcessBatch")
	defer span.End()

	messages, err := r.repo.Claim(ctx, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("outbox.claimed", len(messages)))

	for _, msg := range messages {
		r.dispatch(ctx, msg)
	}
	return len(messages), nil
}

func (r *Relay) dispatch(ctx context.Context, msg domain.OutboxMessage) {
	handler, ok := r.handlers[msg.Kind]
	if !ok {
		r.fail(ctx, msg, fmt.Errorf("no handler for outbox kind %q", msg.Kind), true)
		return
	}

	if err := handler(ctx, msg); err != nil {
		r.fail(ctx, msg, err, false)
		return
	}

	if err := r.repo.MarkProcessed(ctx, msg.ID); err != nil {
		// the lease expires and the message is delivered again
		r.logger.Error("outbox_mark_failed", "Failed to mark outbox message processed", "", map[string]interface{}{
			"message_id": msg.ID.String(),
			"kind":       msg.Kind,
		}, err)
		return
	}

	r.logger.Debug("outbox_dispatched", fmt.Sprintf("Outbox message %s dispatched", msg.Kind), "", map[string]interface{}{
		"message_id": msg.ID.String(),
		"attempts":   msg.Attempts + 1,
	})
}

func (r *Relay) fail(ctx context.Context, msg domain.OutboxMessage, cause error, permanent bool) {
	attempts := msg.Attempts + 1
	dead := permanent || attempts >= r.cfg.MaxAttempts
	retryAt := r.now().Add(Backoff(attempts, r.cfg.MaxBackoff))

	details := map[string]interface{}{
		"message_id": msg.ID.String(),
		"kind":       msg.Kind,
		"attempts":   attempts,
	}
	if dead {
		r.logger.Error("outbox_dead_lettered", "Outbox message gave up", "", details, cause)
	} else {
		details["retry_at"] = retryAt.Format(time.RFC3339)
		r.logger.Error("outbox_dispatch_failed", "Outbox message failed, will retry", "", details, cause)
	}

	if err := r.repo.MarkFailed(ctx, msg.ID, attempts, retryAt, cause.Error(), dead); err != nil {
		r.logger.Error("outbox_mark_failed", "Failed to record outbox failure", "", details, err)
	}
}

// Backoff doubles from one second per attempt and never exceeds ceiling.
func Backoff(attempts int, ceiling time.Duration) time.Duration {
	d := baseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return min(d, ceiling)
}
