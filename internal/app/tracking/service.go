package tracking

import (
	"context"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

type Service struct {
	orderRepo interfaces.OrderRepository
	logger    logger.Logger
}

func NewService(orderRepo interfaces.OrderRepository, logger logger.Logger) *Service {
	return &Service{
		orderRepo: orderRepo,
		logger:    logger,
	}
}

func (s *Service) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.orderRepo.FindByID(ctx, orderID)
}

// GetOrderHistory returns the status log oldest first.
func (s *Service) GetOrderHistory(ctx context.Context, orderID int64) ([]*domain.StatusLog, error) {
	return s.orderRepo.GetStatusHistory(ctx, orderID)
}
