package memory

import (
	"context"
	"sync"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

type PromotionStore struct {
	mu         sync.Mutex
	promotions map[int64]*domain.Promotion
	usages     map[int64]map[int64]bool // promotion -> order -> still held
}

var _ interfaces.PromotionRepository = (*PromotionStore)(nil)

func NewPromotionStore() *PromotionStore {
	return &PromotionStore{
		promotions: make(map[int64]*domain.Promotion),
		usages:     make(map[int64]map[int64]bool),
	}
}

// Add seeds a promotion and returns its id.
func (s *PromotionStore) Add(p domain.Promotion) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		p.ID = int64(len(s.promotions) + 1)
	}
	s.promotions[p.ID] = &p
	return p.ID
}

func (s *PromotionStore) FindByID(_ context.Context, id int64) (*domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promotions[id]
	if !ok {
		return nil, domain.NewNotFound("promotion", id)
	}
	clone := *p
	return &clone, nil
}

func (s *PromotionStore) CountUsages(_ context.Context, promotionID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held(promotionID), nil
}

func (s *PromotionStore) ReleaseUsages(_ context.Context, orderID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released int64
	for _, byOrder := range s.usages {
		if byOrder[orderID] {
			byOrder[orderID] = false
			released++
		}
	}
	return released, nil
}

// reserve records usages for every promotion or for none of them.
func (s *PromotionStore) reserve(promotionIDs []int64, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range promotionIDs {
		p, ok := s.promotions[id]
		if ok && p.MaxUses != nil && s.held(id) >= *p.MaxUses {
			return domain.ErrPromotionExhausted
		}
	}
	for _, id := range promotionIDs {
		if s.usages[id] == nil {
			s.usages[id] = make(map[int64]bool)
		}
		s.usages[id][orderID] = true
	}
	return nil
}

func (s *PromotionStore) held(promotionID int64) int {
	count := 0
	for _, active := range s.usages[promotionID] {
		if active {
			count++
		}
	}
	return count
}
