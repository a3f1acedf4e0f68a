package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"github.com/google/uuid"
)

type outboxRepository struct {
	db DB
}

func NewOutboxRepository(db DB) interfaces.OutboxRepository {
	return &outboxRepository{db: db}
}

// Claim leases due messages. SKIP LOCKED lets several relays poll the same
// table, and the lease hides a claimed row until it expires, so a relay that
// dies mid-batch only delays delivery.
func (r *outboxRepository) Claim(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxMessage, error) {
	query := `
		UPDATE outbox
		SET locked_until = now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM outbox
			WHERE processed_at IS NULL AND dead_at IS NULL
			  AND available_at <= now()
			  AND (locked_until IS NULL OR locked_until < now())
			ORDER BY available_at, created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, payload, attempts, last_error, available_at, created_at
	`

	rows, err := r.db.Query(ctx, query, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.OutboxMessage
	for rows.Next() {
		var (
			msg  domain.OutboxMessage
			kind string
		)
		if err := rows.Scan(&msg.ID, &kind, &msg.Payload, &msg.Attempts, &msg.LastError, &msg.AvailableAt, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msg.Kind = domain.OutboxKind(kind)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox messages: %w", err)
	}

	return messages, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox
		SET processed_at = now(), attempts = attempts + 1, locked_until = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message processed: %w", err)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, retryAt time.Time, lastErr string, dead bool) error {
	query := `
		UPDATE outbox
		SET attempts = $2, available_at = $3, last_error = $4, locked_until = NULL,
		    dead_at = CASE WHEN $5 THEN now() ELSE NULL END
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, attempts, retryAt, lastErr, dead); err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}

// insertOutbox stores side effects in the caller's transaction.
func insertOutbox(ctx context.Context, tx Tx, messages []domain.OutboxMessage) error {
	for _, msg := range messages {
		_, err := tx.Exec(ctx, `
			INSERT INTO outbox (id, kind, payload, available_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, msg.ID, string(msg.Kind), []byte(msg.Payload), msg.AvailableAt, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", msg.Kind, err)
		}
	}
	return nil
}
