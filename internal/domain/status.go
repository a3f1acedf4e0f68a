package domain

import "time"

type ServiceType string

const (
	ServiceTypePickup   ServiceType = "pickup"
	ServiceTypeDelivery ServiceType = "delivery"
	ServiceTypeDineIn   ServiceType = "dine_in"
)

func (t ServiceType) Valid() bool {
	switch t {
	case ServiceTypePickup, ServiceTypeDelivery, ServiceTypeDineIn:
		return true
	}
	return false
}

type Status string

const (
	StatusPending        Status = "pending"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusPickedUp       Status = "picked_up"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition is accepted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var transitions = map[Status][]Status{
	StatusPending:        {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReady, StatusCancelled},
	StatusReady:          {StatusOutForDelivery, StatusPickedUp, StatusCompleted, StatusCancelled},
	StatusOutForDelivery: {StatusCompleted, StatusCancelled},
	StatusPickedUp:       {StatusCompleted},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

// NextStatuses returns the statuses reachable from s. A ready order moves on
// according to how it is served: delivery goes out for delivery, pickup is
// picked up and dine-in completes directly.
func NextStatuses(s Status, t ServiceType) []Status {
	var next []Status
	for _, candidate := range transitions[s] {
		if s == StatusReady && !readyExitAllowed(candidate, t) {
			continue
		}
		next = append(next, candidate)
	}
	return next
}

func readyExitAllowed(to Status, t ServiceType) bool {
	switch to {
	case StatusOutForDelivery:
		return t == ServiceTypeDelivery
	case StatusPickedUp:
		return t == ServiceTypePickup
	case StatusCompleted:
		return t == ServiceTypeDineIn
	}
	return true
}

func CanTransition(from, to Status, t ServiceType) bool {
	for _, s := range NextStatuses(from, t) {
		if s == to {
			return true
		}
	}
	return false
}

// StatusLog represents a log entry for order status changes
type StatusLog struct {
	ID             int64
	OrderID        int64
	PreviousStatus *Status
	Status         Status
	ChangedBy      string
	ChangedAt      time.Time
	Notes          *string
}
