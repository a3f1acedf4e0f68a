// Package memory holds mutex-guarded in-process stores that satisfy the
// repository interfaces. Service tests run against them.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

type OrderStore struct {
	mu         sync.Mutex
	orders     map[int64]*domain.Order
	logs       map[int64][]*domain.StatusLog
	outbox     []domain.OutboxMessage
	promotions *PromotionStore
	nextID     int64

	// FailWrites makes every write return this error, leaving state untouched.
	FailWrites error
}

var _ interfaces.OrderRepository = (*OrderStore)(nil)

// NewOrderStore records promotion usages in promotions when it is not nil.
func NewOrderStore(promotions *PromotionStore) *OrderStore {
	return &OrderStore{
		orders:     make(map[int64]*domain.Order),
		logs:       make(map[int64][]*domain.StatusLog),
		promotions: promotions,
	}
}

func (s *OrderStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return &domain.PersistenceError{Op: "create order", Err: s.FailWrites}
	}
	for _, existing := range s.orders {
		if order.Number != "" && existing.Number == order.Number {
			return fmt.Errorf("%w: %s", domain.ErrOrderNumberTaken, order.Number)
		}
	}

	s.nextID++
	if err := s.reserve(order.AppliedPromotions, s.nextID); err != nil {
		s.nextID--
		return err
	}

	order.ID = s.nextID
	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
		order.Items[i].OrderID = order.ID
	}

	s.orders[order.ID] = order.Clone()
	s.logs[order.ID] = append(s.logs[order.ID], &domain.StatusLog{
		ID:        1,
		OrderID:   order.ID,
		Status:    order.Status,
		ChangedBy: "order-service",
		ChangedAt: order.CreatedAt,
	})
	return nil
}

func (s *OrderStore) FindByID(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, domain.NewNotFound("order", id)
	}
	return order.Clone(), nil
}

func (s *OrderStore) GenerateOrderNumber(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("ORD_%s_%03d", time.Now().UTC().Format("20060102"), len(s.orders)+1), nil
}

func (s *OrderStore) GetStatusHistory(_ context.Context, orderID int64) ([]*domain.StatusLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return nil, domain.NewNotFound("order", orderID)
	}
	logs := make([]*domain.StatusLog, len(s.logs[orderID]))
	copy(logs, s.logs[orderID])
	return logs, nil
}

func (s *OrderStore) UpdateLocked(_ context.Context, orderID int64, mutate interfaces.OrderMutation) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[orderID]
	if !ok {
		return nil, domain.NewNotFound("order", orderID)
	}

	working := stored.Clone()
	change, err := mutate(working)
	if err != nil {
		return nil, err
	}
	if change == nil {
		return stored.Clone(), nil
	}
	if s.FailWrites != nil {
		return nil, &domain.PersistenceError{Op: "update order", Err: s.FailWrites}
	}
	if err := s.reserve(change.NewPromotions, orderID); err != nil {
		return nil, err
	}

	s.orders[orderID] = working.Clone()
	if change.StatusLog != nil {
		entry := *change.StatusLog
		entry.ID = int64(len(s.logs[orderID]) + 1)
		entry.OrderID = orderID
		s.logs[orderID] = append(s.logs[orderID], &entry)
	}
	s.outbox = append(s.outbox, change.Outbox...)

	return working, nil
}

func (s *OrderStore) reserve(applied []domain.AppliedPromotion, orderID int64) error {
	if s.promotions == nil || len(applied) == 0 {
		return nil
	}
	ids := make([]int64, len(applied))
	for i, p := range applied {
		ids[i] = p.PromotionID
	}
	return s.promotions.reserve(ids, orderID)
}

// Outbox returns the messages written so far, in write order.
func (s *OrderStore) Outbox() []domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.OutboxMessage, len(s.outbox))
	copy(out, s.outbox)
	return out
}
