package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidServiceType      = errors.New("invalid service type")
	ErrPromotionExhausted      = errors.New("promotion has reached its usage limit")
	ErrRequestInProgress       = errors.New("a request with this idempotency key is still in progress")
	ErrOrderNumberTaken        = errors.New("order number already taken")
)

// InvalidTransitionError is returned when an order cannot move to the
// requested status. It matches ErrInvalidStatusTransition with errors.Is.
type InvalidTransitionError struct {
	OrderID int64
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("order %d is %s and accepts no further status changes", e.OrderID, e.From)
	}
	return fmt.Sprintf("order %d cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidStatusTransition
}

type InsufficientPointsError struct {
	CustomerID int64
	Requested  int64
	Available  int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("customer %d requested %d points but has %d", e.CustomerID, e.Requested, e.Available)
}

// InvalidOrderError reports an order that cannot take part in the requested
// operation: it belongs to another customer, is in the wrong state, or the
// request itself is out of range.
type InvalidOrderError struct {
	OrderID int64
	Reason  string
}

func (e *InvalidOrderError) Error() string {
	// OrderID is zero for orders that were never stored
	if e.OrderID == 0 {
		return "invalid order: " + e.Reason
	}
	return fmt.Sprintf("order %d: %s", e.OrderID, e.Reason)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func NewNotFound(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

// PersistenceError wraps a transaction or commit failure. Callers may retry
// the whole request.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
