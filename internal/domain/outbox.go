package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxKind selects the handler that executes an outbox message.
type OutboxKind string

const (
	OutboxBroadcastStatusUpdated OutboxKind = "broadcast.order_status_updated"
	OutboxCustomerNotification   OutboxKind = "notification.customer"
	OutboxPointsEarn             OutboxKind = "points.earn"
	OutboxHoldsRelease           OutboxKind = "holds.release"
)

// OutboxMessage is a side effect stored in the same transaction as the state
// change that caused it.
type OutboxMessage struct {
	ID          uuid.UUID
	Kind        OutboxKind
	Payload     json.RawMessage
	Attempts    int
	LastError   *string
	AvailableAt time.Time
	CreatedAt   time.Time
	ProcessedAt *time.Time
	DeadAt      *time.Time
}

func NewOutboxMessage(kind OutboxKind, payload any, now time.Time) (OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return OutboxMessage{
		ID:          uuid.New(),
		Kind:        kind,
		Payload:     body,
		AvailableAt: now,
		CreatedAt:   now,
	}, nil
}

type PointsEarnPayload struct {
	CustomerID  int64  `json:"customer_id"`
	OrderID     int64  `json:"order_id"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
}
