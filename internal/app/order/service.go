package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/app/promotion"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("tablehub/order")

// numberAttempts bounds how often a colliding order number is regenerated.
const numberAttempts = 5

type Service struct {
	repo      interfaces.OrderRepository
	promoRepo interfaces.PromotionRepository
	logger    logger.Logger
	now       func() time.Time
}

func NewService(repo interfaces.OrderRepository, promoRepo interfaces.PromotionRepository, logger logger.Logger) *Service {
	return &Service{
		repo:      repo,
		promoRepo: promoRepo,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) PlaceOrder(ctx context.Context, cmd interfaces.PlaceOrderCommand) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("customer.id", cmd.CustomerID),
		attribute.Int64("restaurant.id", cmd.RestaurantID),
	)

	// 1. Преобразование команд в доменные модели
	items := make([]domain.OrderItem, len(cmd.Items))
	for i, item := range cmd.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Options:   item.Options,
		}
	}

	now := s.now()

	// 2. Создание доменной сущности (валидация и расчет сумм)
	order, err := domain.NewOrder(cmd.CustomerID, cmd.RestaurantID, domain.ServiceType(cmd.ServiceType), items, now)
	if err != nil {
		s.logger.Debug("validation_failed", "Order validation failed", "", map[string]interface{}{"error": err.Error()})
		return nil, &domain.InvalidOrderError{Reason: err.Error()}
	}

	// 3. Промо-акции
	promos, err := s.loadPromotions(ctx, cmd.PromotionIDs)
	if err != nil {
		return nil, err
	}
	for _, result := range promotion.ApplyAtCheckout(order, promos, now) {
		if !result.Applied {
			s.logger.Debug("promotion_skipped", result.Reason, "", map[string]interface{}{
				"promotion_id": result.PromotionID,
				"type":         result.Type,
			})
		}
	}

	// 4-5. Генерация номера и сохранение в БД (транзакционно вместе с логами)
	if err := s.create(ctx, order); err != nil {
		s.logger.Error("db_transaction_failed", "Failed to create order", "", nil, err)
		return nil, err
	}

	s.logger.Info("order_received", fmt.Sprintf("Order %s placed", order.Number), "", map[string]interface{}{
		"order_id":      order.ID,
		"customer_id":   order.CustomerID,
		"restaurant_id": order.RestaurantID,
		"total":         order.Total.String(),
	})

	return order, nil
}

// create numbers and stores the order, drawing a new number when the
// previous one was taken by a concurrent placement.
func (s *Service) create(ctx context.Context, order *domain.Order) error {
	var err error
	for attempt := 1; attempt <= numberAttempts; attempt++ {
		var number string
		number, err = s.repo.GenerateOrderNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to generate order number: %w", err)
		}
		order.Number = number

		err = s.repo.Create(ctx, order)
		if !errors.Is(err, domain.ErrOrderNumberTaken) {
			return err
		}
		s.logger.Debug("order_number_taken", fmt.Sprintf("Order number %s taken, retrying", number), "", map[string]interface{}{
			"attempt": attempt,
		})
	}
	return &domain.PersistenceError{Op: "allocate order number", Err: err}
}

// loadPromotions fetches each requested promotion once, skipping those that
// already reached their usage limit.
func (s *Service) loadPromotions(ctx context.Context, ids []int64) ([]*domain.Promotion, error) {
	seen := make(map[int64]bool, len(ids))
	var promos []*domain.Promotion

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		promo, err := s.promoRepo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if promo.MaxUses != nil {
			used, err := s.promoRepo.CountUsages(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to count promotion usages: %w", err)
			}
			if used >= *promo.MaxUses {
				s.logger.Debug("promotion_skipped", "usage limit reached", "", map[string]interface{}{"promotion_id": id})
				continue
			}
		}

		promos = append(promos, promo)
	}
	return promos, nil
}
